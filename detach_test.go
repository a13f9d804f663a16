package sender

import (
	"testing"
)

func TestDetachOnCancel_CompletesNormallyWithoutStop(t *testing.T) {
	s := DetachOnCancel[int](Just(42))
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if r.Value != 42 {
		t.Fatalf("expected 42, got %v", r.Value)
	}
}

func TestDetachOnCancel_StopBeforeCompletionReturnsDoneImmediately(t *testing.T) {
	outer := NewStopSource()

	var childReceiver Receiver[int]
	child := SenderFunc[int](func(r Receiver[int]) Op {
		return OpFunc(func() { childReceiver = r }) // never settles on its own
	})

	s := DetachOnCancel[int](child)
	r := newRecordingReceiver[int](outer.Token())
	s.Connect(r).Start()

	if r.Settled {
		t.Fatal("outer should not settle until stop is requested")
	}

	outer.RequestStop()
	if !r.Done {
		t.Fatal("expected outer to complete with Done once stop is requested")
	}

	// the detached child keeps running and its eventual completion must be
	// discarded silently, not delivered a second time.
	childReceiver.SetValue(1)
	if r.Err != nil {
		t.Fatalf("discarded background completion must not mutate the settled receiver, got err=%v", r.Err)
	}
}

func TestDetachOnCancel_NaturalCompletionWinsRaceAgainstLateStop(t *testing.T) {
	outer := NewStopSource()
	s := DetachOnCancel[int](Just(7))
	r := newRecordingReceiver[int](outer.Token())
	s.Connect(r).Start()

	if r.Value != 7 {
		t.Fatalf("expected natural completion to win since it settles inline, got value=%v done=%v", r.Value, r.Done)
	}

	// stopping after natural completion must be a pure no-op.
	outer.RequestStop()
	if r.Value != 7 {
		t.Fatal("late stop must not alter an already-settled result")
	}
}
