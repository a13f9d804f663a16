package sender

import (
	"testing"
	"time"
)

func TestInlineScheduler_ScheduleCompletesInline(t *testing.T) {
	r := newRecordingReceiver[struct{}](nil)
	InlineScheduler{}.Schedule().Connect(r).Start()
	if !r.Settled {
		t.Fatal("InlineScheduler.Schedule should complete inline")
	}
}

func TestInlineScheduler_ScheduleAfterFiresAfterDelay(t *testing.T) {
	r := newRecordingReceiver[struct{}](nil)
	InlineScheduler{}.ScheduleAfter(5 * time.Millisecond).Connect(r).Start()

	if r.Settled {
		t.Fatal("ScheduleAfter must not complete before Start returns")
	}

	time.Sleep(20 * time.Millisecond)
	if !r.Settled {
		t.Fatal("expected the timer to have fired by now")
	}
}

func TestInlineScheduler_ScheduleAfterStoppedBeforeFiring(t *testing.T) {
	outer := NewStopSource()
	r := newRecordingReceiver[struct{}](outer.Token())
	InlineScheduler{}.ScheduleAfter(time.Hour).Connect(r).Start()

	outer.RequestStop()
	time.Sleep(time.Millisecond)
	if r.Settled {
		t.Fatal("stopping before the timer fires should not deliver a completion via this path")
	}
}

func TestRateLimitedScheduler_AdmitsWithinLimit(t *testing.T) {
	s := NewRateLimitedScheduler(InlineScheduler{}, &RateLimitedSchedulerConfig{Rates: map[time.Duration]int{time.Minute: 10}, Category: "category"})

	r := newRecordingReceiver[struct{}](nil)
	s.Schedule().Connect(r).Start()
	if !r.Settled {
		t.Fatal("first scheduled call within the limit should admit immediately")
	}
}

func TestRateLimitedScheduler_ThrottlesAndRetries(t *testing.T) {
	s := NewRateLimitedScheduler(InlineScheduler{}, &RateLimitedSchedulerConfig{Rates: map[time.Duration]int{50 * time.Millisecond: 1}, Category: "category"})

	first := newRecordingReceiver[struct{}](nil)
	s.Schedule().Connect(first).Start()
	if !first.Settled {
		t.Fatal("first call should be admitted")
	}

	second := newRecordingReceiver[struct{}](nil)
	s.Schedule().Connect(second).Start()
	if second.Settled {
		t.Fatal("second call should be throttled and not settle immediately")
	}

	time.Sleep(100 * time.Millisecond)
	if !second.Settled {
		t.Fatal("expected the throttled call to eventually retry and succeed")
	}
}

func TestBoundedScheduler_LimitsConcurrency(t *testing.T) {
	var firstReceiver, secondReceiver Receiver[struct{}]
	blocking := &stubTimedScheduler{
		pending: []*Receiver[struct{}]{&firstReceiver, &secondReceiver},
	}
	wrapped := NewBoundedScheduler(blocking, &BoundedSchedulerConfig{Concurrency: 1})

	first := newRecordingReceiver[struct{}](nil)
	wrapped.Schedule().Connect(first).Start()
	if first.Settled {
		t.Fatal("first call should be holding its slot, not yet settled")
	}

	second := newRecordingReceiver[struct{}](nil)
	done := make(chan struct{})
	go func() {
		wrapped.Schedule().Connect(second).Start()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second call should block until the first releases its slot")
	case <-time.After(10 * time.Millisecond):
	}

	firstReceiver.SetValue(struct{}{})
	if !first.Settled {
		t.Fatal("first call should complete once its underlying sender settles")
	}

	<-done
	secondReceiver.SetValue(struct{}{})
	if !second.Settled {
		t.Fatal("second call should complete once the slot is released and its sender settles")
	}
}

// stubTimedScheduler hands out a never-completing sender per call, storing
// the receiver into the next slot in pending so the test can settle it
// manually, for TestBoundedScheduler_LimitsConcurrency.
type stubTimedScheduler struct{ pending []*Receiver[struct{}] }

func (s *stubTimedScheduler) next() Sender[struct{}] {
	slot := s.pending[0]
	s.pending = s.pending[1:]
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() { *slot = r })
	})
}

func (s *stubTimedScheduler) Schedule() Sender[struct{}]                      { return s.next() }
func (s *stubTimedScheduler) ScheduleAfter(time.Duration) Sender[struct{}] { return s.next() }
