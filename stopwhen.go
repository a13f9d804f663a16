package sender

// StopWhen composes a source sender with a trigger sender: both start
// immediately, and when either completes the other is asked to stop. The
// outer result is always taken from source — if trigger wins the race but
// source still completes with a value (because it raced past the stop
// check), that value is reported; if source honors the stop and completes
// Done, Done is reported. Per spec.md §4.6.
//
// Timeouts are built from this: StopWhen(work, scheduler.ScheduleAfter(d)).
func StopWhen[T any](source Sender[T], trigger Sender[struct{}]) Sender[T] {
	return stopWhenSender[T]{source, trigger}
}

type stopWhenSender[T any] struct {
	source  Sender[T]
	trigger Sender[struct{}]
}

func (s stopWhenSender[T]) Blocking() Blocking { return SenderBlocking(s.source) }

func (s stopWhenSender[T]) Connect(r Receiver[T]) Op {
	op := &stopWhenOp[T]{downstream: r}
	op.stop = &StopSource{}
	op.outerStop = r.StopToken().OnStop(func() { op.stop.RequestStop() })
	op.sourceOp = s.source.Connect(stopWhenSourceReceiver[T]{op})
	op.triggerOp = s.trigger.Connect(stopWhenTriggerReceiver[T]{op})
	return op
}

type stopWhenOp[T any] struct {
	downstream Receiver[T]
	stop       *StopSource
	outerStop  Cancelable
	sourceOp   Op
	triggerOp  Op
}

func (op *stopWhenOp[T]) Start() {
	op.sourceOp.Start()
	op.triggerOp.Start()
}

type stopWhenSourceReceiver[T any] struct{ op *stopWhenOp[T] }

func (r stopWhenSourceReceiver[T]) SetValue(v T) {
	r.op.stop.RequestStop() // ask the trigger to stand down
	r.op.outerStop.Unregister()
	r.op.downstream.SetValue(v)
}

func (r stopWhenSourceReceiver[T]) SetError(err error) {
	r.op.stop.RequestStop()
	r.op.outerStop.Unregister()
	r.op.downstream.SetError(err)
}

func (r stopWhenSourceReceiver[T]) SetDone() {
	r.op.stop.RequestStop()
	r.op.outerStop.Unregister()
	r.op.downstream.SetDone()
}

func (r stopWhenSourceReceiver[T]) StopToken() StopToken {
	return CombineStopTokens(r.op.downstream.StopToken(), r.op.stop.Token())
}

// stopWhenTriggerReceiver never delivers a result to downstream directly —
// it only ever asks the source to stop. The source's own, possibly racy,
// completion is what downstream sees.
type stopWhenTriggerReceiver[T any] struct{ op *stopWhenOp[T] }

func (r stopWhenTriggerReceiver[T]) SetValue(struct{}) { r.op.stop.RequestStop() }
func (r stopWhenTriggerReceiver[T]) SetError(error)    { r.op.stop.RequestStop() }
func (r stopWhenTriggerReceiver[T]) SetDone()          { r.op.stop.RequestStop() }
func (r stopWhenTriggerReceiver[T]) StopToken() StopToken {
	return r.op.stop.Token()
}
