package sender

import "sync/atomic"

// Pair is the value type produced by [WhenAll2].
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple is the value type produced by [WhenAll3].
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Quad is the value type produced by [WhenAll4].
type Quad[A, B, C, D any] struct {
	First  A
	Second B
	Third  C
	Fourth D
}

// joinCoordinator is the shared fan-in state described in spec.md §4.5: an
// internal stop source shared by every child (so one child's terminal
// error/done cancels the rest), an atomic remaining-count, and a
// first-terminal-wins CAS flag. It is held by the ops of [WhenAll2]/
// [WhenAll3]/[WhenAll4]/[WhenAllSlice]; [StopWhen] does not use it.
type joinCoordinator struct {
	stop       StopSource
	remaining  atomic.Int64
	terminal   atomic.Bool
	outerStop  Cancelable
}

func newJoinCoordinator(n int, outer StopToken) *joinCoordinator {
	jc := &joinCoordinator{}
	jc.remaining.Store(int64(n))
	jc.outerStop = outer.OnStop(func() { jc.stop.RequestStop() })
	return jc
}

// claimTerminal reports whether the caller is the first to observe a
// terminal (error or done) signal; subsequent callers must discard their
// signal instead of forwarding it.
func (jc *joinCoordinator) claimTerminal() bool {
	if jc.terminal.CompareAndSwap(false, true) {
		jc.stop.RequestStop()
		return true
	}
	return false
}

// childDone decrements the remaining count, reporting whether this call
// observed it reach zero (i.e. this child is the one responsible for
// delivering the aggregated result).
func (jc *joinCoordinator) childDone() bool {
	return jc.remaining.Add(-1) == 0
}

func (jc *joinCoordinator) release() { jc.outerStop.Unregister() }

// childStopToken returns the token a child sender should observe: stopped
// either by the outer receiver's token, or by a sibling's terminal signal.
func (jc *joinCoordinator) childStopToken() StopToken { return jc.stop.Token() }

// WhenAll2 completes with a [Pair] of both children's values once both
// complete with Value; otherwise with the first observed Error or Done,
// per spec.md §4.5.
func WhenAll2[A, B any](sa Sender[A], sb Sender[B]) Sender[Pair[A, B]] {
	return whenAll2Sender[A, B]{sa, sb}
}

type whenAll2Sender[A, B any] struct {
	a Sender[A]
	b Sender[B]
}

func (s whenAll2Sender[A, B]) Blocking() Blocking {
	return combineBlocking(SenderBlocking(s.a), SenderBlocking(s.b))
}

func (s whenAll2Sender[A, B]) Connect(r Receiver[Pair[A, B]]) Op {
	op := &whenAll2Op[A, B]{downstream: r}
	op.jc = newJoinCoordinator(2, r.StopToken())
	term := whenAllTerminal[Pair[A, B]]{r}
	op.aOp = s.a.Connect(whenAllChildReceiver[A]{jc: op.jc, slot: &op.aVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.bOp = s.b.Connect(whenAllChildReceiver[B]{jc: op.jc, slot: &op.bVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	return op
}

type whenAll2Op[A, B any] struct {
	downstream Receiver[Pair[A, B]]
	jc         *joinCoordinator
	aOp, bOp   Op
	aVal       A
	bVal       B
}

func (op *whenAll2Op[A, B]) Start() {
	op.aOp.Start()
	op.bOp.Start()
}

func (op *whenAll2Op[A, B]) finish() {
	op.jc.release()
	if op.jc.terminal.Load() {
		return // a terminal path already delivered the result
	}
	op.downstream.SetValue(Pair[A, B]{op.aVal, op.bVal})
}

// whenAllChildReceiver wraps a single child of a when_all-family adapter.
// slot receives the child's value if it is the one that eventually matters
// (i.e. no terminal signal won); onLast is invoked by whichever child
// observes the remaining-count reach zero.
type whenAllChildReceiver[A any] struct {
	jc     *joinCoordinator
	slot   *A
	onLast func()
	onErr  func(error)
	onDone func()
}

func (r whenAllChildReceiver[A]) SetValue(v A) {
	*r.slot = v
	if r.jc.childDone() {
		r.onLast()
	}
}

func (r whenAllChildReceiver[A]) SetError(err error) {
	first := r.jc.claimTerminal()
	last := r.jc.childDone()
	if first && r.onErr != nil {
		r.onErr(err)
	}
	if last {
		r.onLast()
	}
}

func (r whenAllChildReceiver[A]) SetDone() {
	first := r.jc.claimTerminal()
	last := r.jc.childDone()
	if first && r.onDone != nil {
		r.onDone()
	}
	if last {
		r.onLast()
	}
}

func (r whenAllChildReceiver[A]) StopToken() StopToken { return r.jc.childStopToken() }

// whenAllTerminal centralizes delivering the first-observed terminal
// signal to the outer downstream receiver exactly once.
type whenAllTerminal[T any] struct {
	downstream Receiver[T]
}

func (t whenAllTerminal[T]) setErr(err error) { t.downstream.SetError(err) }
func (t whenAllTerminal[T]) setDone()         { t.downstream.SetDone() }

// WhenAll3 is the 3-ary counterpart of [WhenAll2].
func WhenAll3[A, B, C any](sa Sender[A], sb Sender[B], sc Sender[C]) Sender[Triple[A, B, C]] {
	return whenAll3Sender[A, B, C]{sa, sb, sc}
}

type whenAll3Sender[A, B, C any] struct {
	a Sender[A]
	b Sender[B]
	c Sender[C]
}

func (s whenAll3Sender[A, B, C]) Blocking() Blocking {
	return combineBlocking(SenderBlocking(s.a), SenderBlocking(s.b), SenderBlocking(s.c))
}

func (s whenAll3Sender[A, B, C]) Connect(r Receiver[Triple[A, B, C]]) Op {
	op := &whenAll3Op[A, B, C]{downstream: r}
	op.jc = newJoinCoordinator(3, r.StopToken())
	term := whenAllTerminal[Triple[A, B, C]]{r}
	op.aOp = s.a.Connect(whenAllChildReceiver[A]{jc: op.jc, slot: &op.aVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.bOp = s.b.Connect(whenAllChildReceiver[B]{jc: op.jc, slot: &op.bVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.cOp = s.c.Connect(whenAllChildReceiver[C]{jc: op.jc, slot: &op.cVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	return op
}

type whenAll3Op[A, B, C any] struct {
	downstream     Receiver[Triple[A, B, C]]
	jc             *joinCoordinator
	aOp, bOp, cOp  Op
	aVal           A
	bVal           B
	cVal           C
}

func (op *whenAll3Op[A, B, C]) Start() {
	op.aOp.Start()
	op.bOp.Start()
	op.cOp.Start()
}

func (op *whenAll3Op[A, B, C]) finish() {
	op.jc.release()
	if op.jc.terminal.Load() {
		return
	}
	op.downstream.SetValue(Triple[A, B, C]{op.aVal, op.bVal, op.cVal})
}

// WhenAll4 is the 4-ary counterpart of [WhenAll2].
func WhenAll4[A, B, C, D any](sa Sender[A], sb Sender[B], sc Sender[C], sd Sender[D]) Sender[Quad[A, B, C, D]] {
	return whenAll4Sender[A, B, C, D]{sa, sb, sc, sd}
}

type whenAll4Sender[A, B, C, D any] struct {
	a Sender[A]
	b Sender[B]
	c Sender[C]
	d Sender[D]
}

func (s whenAll4Sender[A, B, C, D]) Blocking() Blocking {
	return combineBlocking(SenderBlocking(s.a), SenderBlocking(s.b), SenderBlocking(s.c), SenderBlocking(s.d))
}

func (s whenAll4Sender[A, B, C, D]) Connect(r Receiver[Quad[A, B, C, D]]) Op {
	op := &whenAll4Op[A, B, C, D]{downstream: r}
	op.jc = newJoinCoordinator(4, r.StopToken())
	term := whenAllTerminal[Quad[A, B, C, D]]{r}
	op.aOp = s.a.Connect(whenAllChildReceiver[A]{jc: op.jc, slot: &op.aVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.bOp = s.b.Connect(whenAllChildReceiver[B]{jc: op.jc, slot: &op.bVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.cOp = s.c.Connect(whenAllChildReceiver[C]{jc: op.jc, slot: &op.cVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	op.dOp = s.d.Connect(whenAllChildReceiver[D]{jc: op.jc, slot: &op.dVal, onLast: op.finish, onErr: term.setErr, onDone: term.setDone})
	return op
}

type whenAll4Op[A, B, C, D any] struct {
	downstream          Receiver[Quad[A, B, C, D]]
	jc                  *joinCoordinator
	aOp, bOp, cOp, dOp  Op
	aVal                A
	bVal                B
	cVal                C
	dVal                D
}

func (op *whenAll4Op[A, B, C, D]) Start() {
	op.aOp.Start()
	op.bOp.Start()
	op.cOp.Start()
	op.dOp.Start()
}

func (op *whenAll4Op[A, B, C, D]) finish() {
	op.jc.release()
	if op.jc.terminal.Load() {
		return
	}
	op.downstream.SetValue(Quad[A, B, C, D]{op.aVal, op.bVal, op.cVal, op.dVal})
}

// WhenAllSlice is the run-time-arity counterpart of [WhenAll2] (spec.md's
// when_all_range): it allocates one slice of child ops and one of
// per-child value slots.
func WhenAllSlice[T any](senders []Sender[T]) Sender[[]T] {
	return whenAllSliceSender[T]{senders}
}

type whenAllSliceSender[T any] struct{ senders []Sender[T] }

func (s whenAllSliceSender[T]) Blocking() Blocking {
	bs := make([]Blocking, len(s.senders))
	for i, c := range s.senders {
		bs[i] = SenderBlocking(c)
	}
	return combineBlocking(bs...)
}

func (s whenAllSliceSender[T]) Connect(r Receiver[[]T]) Op {
	n := len(s.senders)
	if n == 0 {
		return OpFunc(func() { r.SetValue(nil) })
	}
	op := &whenAllSliceOp[T]{
		downstream: r,
		ops:        make([]Op, n),
		values:     make([]T, n),
	}
	op.jc = newJoinCoordinator(n, r.StopToken())
	term := whenAllTerminal[[]T]{r}
	for i, child := range s.senders {
		i := i
		op.ops[i] = child.Connect(whenAllChildReceiver[T]{
			jc: op.jc, slot: &op.values[i], onLast: op.finish,
			onErr: term.setErr, onDone: term.setDone,
		})
	}
	return op
}

type whenAllSliceOp[T any] struct {
	downstream Receiver[[]T]
	jc         *joinCoordinator
	ops        []Op
	values     []T
}

func (op *whenAllSliceOp[T]) Start() {
	for _, child := range op.ops {
		child.Start()
	}
}

func (op *whenAllSliceOp[T]) finish() {
	op.jc.release()
	if op.jc.terminal.Load() {
		return
	}
	op.downstream.SetValue(op.values)
}
