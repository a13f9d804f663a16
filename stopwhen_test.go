package sender

import (
	"errors"
	"testing"
)

func TestStopWhen_SourceWinsStopsTrigger(t *testing.T) {
	var triggerStopped bool
	trigger := SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			r.StopToken().OnStop(func() { triggerStopped = true })
		})
	})

	s := StopWhen[int](Just(5), trigger)
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if r.Value != 5 {
		t.Fatalf("expected source's value 5, got %v", r.Value)
	}
	if !triggerStopped {
		t.Fatal("trigger should be asked to stop once source completes")
	}
}

func TestStopWhen_TriggerFiresRequestsSourceStop(t *testing.T) {
	var sourceStopped bool
	source := SenderFunc[int](func(r Receiver[int]) Op {
		return OpFunc(func() {
			r.StopToken().OnStop(func() {
				sourceStopped = true
				r.SetDone()
			})
		})
	})

	s := StopWhen[int](source, Just(struct{}{}))
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if !sourceStopped {
		t.Fatal("source should observe stop once trigger fires first")
	}
	if !r.Done {
		t.Fatal("expected source's own Done completion to be delivered")
	}
}

func TestStopWhen_OuterStopPropagatesToBoth(t *testing.T) {
	outer := NewStopSource()

	var sourceStopped, triggerStopped bool
	source := SenderFunc[int](func(r Receiver[int]) Op {
		return OpFunc(func() { r.StopToken().OnStop(func() { sourceStopped = true }) })
	})
	trigger := SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() { r.StopToken().OnStop(func() { triggerStopped = true }) })
	})

	s := StopWhen[int](source, trigger)
	r := newRecordingReceiver[int](outer.Token())
	s.Connect(r).Start()

	outer.RequestStop()

	if !sourceStopped || !triggerStopped {
		t.Fatalf("outer stop should propagate to both children: source=%v trigger=%v", sourceStopped, triggerStopped)
	}
}

func TestStopWhen_SourceErrorPropagates(t *testing.T) {
	wantErr := errors.New("source failed")
	s := StopWhen[int](JustError[int](wantErr), Just(struct{}{}))
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if r.Err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, r.Err)
	}
}
