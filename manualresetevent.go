package sender

import "sync/atomic"

// mreSetSentinel is the atomic.Pointer value used to mean "already set, no
// waiter list", per spec.md §4.11.
var mreSetSentinel = &mreWaiter{}

type mreWaiter struct {
	next *mreWaiter
	fn   func()
}

// ManualResetEvent is a boolean that, once set, completes all pending
// waiters and causes waiters registered afterward to run inline. The zero
// value is a usable, not-yet-set event.
type ManualResetEvent struct {
	state atomic.Pointer[mreWaiter]
}

// IsSet reports whether [ManualResetEvent.Set] has been called.
func (e *ManualResetEvent) IsSet() bool { return e.state.Load() == mreSetSentinel }

// Set marks the event as set, running every registered waiter, on the
// calling goroutine, in registration order. Idempotent: subsequent calls
// are no-ops.
func (e *ManualResetEvent) Set() {
	old := e.state.Swap(mreSetSentinel)
	if old == mreSetSentinel {
		return
	}
	// list was pushed in LIFO order; reverse it so waiters run in
	// registration order.
	var head *mreWaiter
	for w := old; w != nil; {
		next := w.next
		w.next = head
		head = w
		w = next
	}
	for w := head; w != nil; w = w.next {
		fn := w.fn
		if err := recoverToError(func() error { fn(); return nil }); err != nil {
			logError("ManualResetEvent", "OnSet callback panicked", err)
		}
	}
}

// OnSet registers fn to run when the event becomes set. If already set, fn
// runs inline, synchronously, before OnSet returns.
func (e *ManualResetEvent) OnSet(fn func()) {
	for {
		cur := e.state.Load()
		if cur == mreSetSentinel {
			fn()
			return
		}
		w := &mreWaiter{next: cur, fn: fn}
		if e.state.CompareAndSwap(cur, w) {
			return
		}
	}
}

// Wait blocks the calling goroutine until the event is set.
func (e *ManualResetEvent) Wait() {
	ch := make(chan struct{})
	e.OnSet(func() { close(ch) })
	<-ch
}

// WaitSender returns a sender that completes with Value once the event is
// set, for composing the wait into a larger sender graph (as used by
// [AsyncScope.Join]).
func (e *ManualResetEvent) WaitSender() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			e.OnSet(func() { r.SetValue(struct{}{}) })
		})
	})
}
