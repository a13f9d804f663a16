package sender

// Then wraps pred, transforming its value with f. If f panics, the panic is
// recovered and routed to SetError, per spec.md §4.3/§7. Error and Done
// from pred propagate unchanged.
func Then[T, U any](pred Sender[T], f func(T) (U, error)) Sender[U] {
	if f == nil {
		panic("sender: nil func")
	}
	return thenSender[T, U]{pred, f}
}

type thenSender[T, U any] struct {
	pred Sender[T]
	f    func(T) (U, error)
}

func (s thenSender[T, U]) Connect(r Receiver[U]) Op {
	return s.pred.Connect(thenReceiver[T, U]{downstream: r, f: s.f})
}

func (s thenSender[T, U]) Blocking() Blocking { return SenderBlocking(s.pred) }

type thenReceiver[T, U any] struct {
	downstream Receiver[U]
	f          func(T) (U, error)
}

func (r thenReceiver[T, U]) SetValue(v T) {
	out, err := func() (out U, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &PanicError{Recovered: rec}
			}
		}()
		return r.f(v)
	}()
	if err != nil {
		r.downstream.SetError(err)
		return
	}
	r.downstream.SetValue(out)
}

func (r thenReceiver[T, U]) SetError(err error) { r.downstream.SetError(err) }
func (r thenReceiver[T, U]) SetDone()           { r.downstream.SetDone() }
func (r thenReceiver[T, U]) StopToken() StopToken {
	return r.downstream.StopToken()
}

// ThenVoid is [Then] specialized for transforms with no meaningful input
// value, e.g. chaining after a Sender[struct{}].
func ThenVoid[U any](pred Sender[struct{}], f func() (U, error)) Sender[U] {
	return Then(pred, func(struct{}) (U, error) { return f() })
}
