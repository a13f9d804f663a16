package sender

import (
	"errors"
	"testing"
)

func TestLetValue_StorageOutlivesSuccessor(t *testing.T) {
	var observed int
	s := LetValue(Just(41), func(v *int) Sender[int] {
		*v++ // mutate in place, proving the caller holds the real storage
		observed = *v
		return Just(*v)
	})
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if observed != 42 {
		t.Fatalf("expected mutated storage to read 42, got %d", observed)
	}
	if r.Value != 42 {
		t.Fatalf("expected successor value 42, got %d", r.Value)
	}
}

func TestLetValue_PredecessorErrorSkipsFactory(t *testing.T) {
	wantErr := errors.New("pred failed")
	called := false
	s := LetValue(JustError[int](wantErr), func(*int) Sender[int] {
		called = true
		return Just(0)
	})
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if called {
		t.Fatal("factory must not run when predecessor errors")
	}
	if r.Err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, r.Err)
	}
}

func TestLetValue_FactoryPanicBecomesError(t *testing.T) {
	s := LetValue(Just(1), func(*int) Sender[int] { panic("nope") })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	var panicErr *PanicError
	if !errors.As(r.Err, &panicErr) {
		t.Fatalf("expected *PanicError, got %v", r.Err)
	}
}

func TestLetError_BuildsSuccessorFromError(t *testing.T) {
	origErr := errors.New("first failure")
	s := LetError(JustError[int](origErr), func(err error) Sender[int] {
		if err != origErr {
			t.Errorf("factory received wrong error: %v", err)
		}
		return Just(99)
	})
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if r.Value != 99 {
		t.Fatalf("expected recovered value 99, got %v", r.Value)
	}
}

func TestLetError_ValuePropagatesUnchanged(t *testing.T) {
	called := false
	s := LetError(Just(5), func(error) Sender[int] { called = true; return Just(0) })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if called {
		t.Fatal("factory must not run when predecessor succeeds")
	}
	if r.Value != 5 {
		t.Fatalf("expected 5, got %v", r.Value)
	}
}

func TestLetDone_BuildsSuccessorOnCancellation(t *testing.T) {
	s := LetDone(JustDone[int](), func() Sender[int] { return Just(3) })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if r.Value != 3 {
		t.Fatalf("expected fallback value 3, got %v", r.Value)
	}
}

func TestLetDone_ErrorPropagatesUnchanged(t *testing.T) {
	wantErr := errors.New("boom")
	called := false
	s := LetDone(JustError[int](wantErr), func() Sender[int] { called = true; return Just(0) })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if called {
		t.Fatal("factory must not run on error")
	}
	if r.Err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, r.Err)
	}
}
