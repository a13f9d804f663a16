package sender

import "sync/atomic"

// DetachOnCancel wraps s such that, if the downstream stop token fires
// before s completes, the outer operation completes with Done immediately
// while leaving s running to completion in the background. spec.md §4.8
// describes the reference implementation as a packed-pointer refcount;
// per spec.md §9's "either is acceptable", this implementation uses a
// single atomic CAS-claimed flag instead, since Go has no idiomatic way to
// tag a pointer's low bits without unsafe.Pointer arithmetic that would
// fight the garbage collector. Whichever of "child completed" or "stop
// fired" wins the CAS decides the outcome; the loser is a pure no-op.
func DetachOnCancel[T any](s Sender[T]) Sender[T] {
	return detachSender[T]{s}
}

type detachSender[T any] struct{ s Sender[T] }

func (d detachSender[T]) Connect(r Receiver[T]) Op {
	return OpFunc(func() {
		state := &detachedState[T]{}

		cb := r.StopToken().OnStop(func() {
			if state.claimed.CompareAndSwap(false, true) {
				logDebug("DetachOnCancel", "stop observed before completion, detaching")
				state.innerStop.RequestStop()
				r.SetDone()
			}
		})

		state.op = d.s.Connect(detachChildReceiver[T]{state: state, downstream: r, cb: cb})
		state.op.Start()
	})
}

// detachedState outlives the outer Op whenever the stop path wins the
// race: the outer's Start returns immediately, but state.op keeps running
// until its own completion, at which point detachChildReceiver discovers
// it lost the CAS and simply discards the result.
type detachedState[T any] struct {
	op        Op
	claimed   atomic.Bool
	innerStop StopSource
}

type detachChildReceiver[T any] struct {
	state      *detachedState[T]
	downstream Receiver[T]
	cb         Cancelable
}

func (r detachChildReceiver[T]) complete(deliver func()) {
	if r.state.claimed.CompareAndSwap(false, true) {
		r.cb.Unregister()
		deliver()
		return
	}
	logDebug("DetachOnCancel", "background completion after detach, discarding result")
}

func (r detachChildReceiver[T]) SetValue(v T) {
	r.complete(func() { r.downstream.SetValue(v) })
}

func (r detachChildReceiver[T]) SetError(err error) {
	r.complete(func() { r.downstream.SetError(err) })
}

func (r detachChildReceiver[T]) SetDone() {
	r.complete(func() { r.downstream.SetDone() })
}

func (r detachChildReceiver[T]) StopToken() StopToken { return r.state.innerStop.Token() }
