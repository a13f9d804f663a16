package sender

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThen_TransformsValue(t *testing.T) {
	s := Then(Just(2), func(v int) (int, error) { return v * 10, nil })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	require.True(t, r.Settled)
	require.Equal(t, 20, r.Value)
}

func TestThen_FuncErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	s := Then(Just(1), func(int) (int, error) { return 0, wantErr })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	require.Equal(t, wantErr, r.Err)
}

func TestThen_FuncPanicBecomesError(t *testing.T) {
	s := Then(Just(1), func(int) (int, error) { panic("kaboom") })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	var panicErr *PanicError
	if !errors.As(r.Err, &panicErr) {
		t.Fatalf("expected *PanicError, got %v", r.Err)
	}
	if panicErr.Recovered != "kaboom" {
		t.Errorf("unexpected recovered value %v", panicErr.Recovered)
	}
}

func TestThen_PredecessorErrorPropagatesUnchanged(t *testing.T) {
	wantErr := errors.New("pred failed")
	called := false
	s := Then(JustError[int](wantErr), func(int) (int, error) { called = true; return 0, nil })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if called {
		t.Fatal("f must not be called when the predecessor errors")
	}
	if r.Err != wantErr {
		t.Fatalf("expected predecessor error to propagate, got %v", r.Err)
	}
}

func TestThen_PredecessorDonePropagates(t *testing.T) {
	s := Then(JustDone[int](), func(int) (int, error) { return 0, nil })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()

	if !r.Done {
		t.Fatal("expected Done to propagate")
	}
}

func TestThen_BlockingMatchesPredecessor(t *testing.T) {
	if got := SenderBlocking[int](Then(Just(1), func(int) (int, error) { return 0, nil })); got != BlockingAlwaysInline {
		t.Errorf("Then(just(...)) should advertise always_inline, got %v", got)
	}
}

func TestThenVoid(t *testing.T) {
	s := ThenVoid(Just(struct{}{}), func() (int, error) { return 7, nil })
	r := newRecordingReceiver[int](nil)
	s.Connect(r).Start()
	if r.Value != 7 {
		t.Fatalf("expected 7, got %v", r.Value)
	}
}
