package sender

// Receiver consumes exactly one completion signal for a value of type T.
// Implementations must tolerate being moved (held by pointer or value) and
// must treat exactly one of SetValue, SetError, or SetDone as terminal.
type Receiver[T any] interface {
	// SetValue completes the operation successfully.
	SetValue(value T)

	// SetError completes the operation with an error. Must not panic.
	SetError(err error)

	// SetDone completes the operation with cancellation, carrying no value.
	// Must not panic.
	SetDone()

	// StopToken returns the cancellation token visible to the operation
	// bound to this receiver. Receivers that do not support cancellation
	// should return [NeverStopToken]{}.
	StopToken() StopToken
}

// SchedulerQuery is implemented by receivers that can answer the
// get_scheduler query. Adapters that require a scheduler perform a type
// assertion against this interface rather than requiring every receiver to
// implement an unused method.
type SchedulerQuery interface {
	Scheduler() Scheduler
}

// ReceiverScheduler returns the scheduler exposed by r, if any.
func ReceiverScheduler[T any](r Receiver[T]) (Scheduler, bool) {
	if sq, ok := any(r).(SchedulerQuery); ok {
		return sq.Scheduler(), true
	}
	return nil, false
}

// Op is an operation state produced by [Sender.Connect]. Start must be
// called at most once; it drives the operation and, on completion, invokes
// exactly one signal on the receiver it was connected with.
type Op interface {
	// Start begins the operation. Must be called at most once. May
	// complete the receiver's signal synchronously before returning.
	Start()
}

// OpFunc adapts a plain function to the [Op] interface.
type OpFunc func()

// Start implements [Op].
func (f OpFunc) Start() { f() }

// Sender describes an asynchronous operation that produces a single value
// of type T, without having started one. Connect binds it to a receiver,
// producing an [Op]; Connect itself must not start any work.
type Sender[T any] interface {
	Connect(r Receiver[T]) Op
}

// SenderFunc adapts a plain connect function to the [Sender] interface.
type SenderFunc[T any] func(r Receiver[T]) Op

// Connect implements [Sender].
func (f SenderFunc[T]) Connect(r Receiver[T]) Op { return f(r) }

// Blocking is a sender's static assertion about where its completion
// signal runs relative to [Op.Start].
type Blocking int

const (
	// BlockingMaybe is the default: no assertion is made.
	BlockingMaybe Blocking = iota
	// BlockingNever asserts the sender's signal is never delivered inline
	// from Start, and never on the starting thread before Start returns.
	BlockingNever
	// BlockingAlways asserts the signal is delivered before Start returns,
	// possibly (but not necessarily) synchronously.
	BlockingAlways
	// BlockingAlwaysInline asserts the signal is delivered synchronously,
	// on the calling thread, before Start returns.
	BlockingAlwaysInline
)

// String implements fmt.Stringer.
func (b Blocking) String() string {
	switch b {
	case BlockingNever:
		return "never"
	case BlockingAlways:
		return "always"
	case BlockingAlwaysInline:
		return "always_inline"
	default:
		return "maybe"
	}
}

// BlockingHint is implemented by senders that can advertise a static
// [Blocking] category. Senders that don't implement it are treated as
// [BlockingMaybe].
type BlockingHint interface {
	Blocking() Blocking
}

// SenderBlocking returns s's advertised blocking category, defaulting to
// [BlockingMaybe] if s does not implement [BlockingHint].
func SenderBlocking[T any](s Sender[T]) Blocking {
	if h, ok := any(s).(BlockingHint); ok {
		return h.Blocking()
	}
	return BlockingMaybe
}

// combineBlocking computes the blocking category of an adapter from its
// children's categories, per spec.md's testable property: always_inline
// only if every child is; at-most-always only if every child is at most
// always; never only if every child is never; otherwise maybe.
func combineBlocking(children ...Blocking) Blocking {
	allInline, allAtMostAlways, allNever := true, true, true
	for _, c := range children {
		if c != BlockingAlwaysInline {
			allInline = false
		}
		if c != BlockingAlwaysInline && c != BlockingAlways {
			allAtMostAlways = false
		}
		if c != BlockingNever {
			allNever = false
		}
	}
	switch {
	case allInline:
		return BlockingAlwaysInline
	case allAtMostAlways:
		return BlockingAlways
	case allNever:
		return BlockingNever
	default:
		return BlockingMaybe
	}
}
