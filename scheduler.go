package sender

import (
	"context"
	"time"

	"github.com/joeycumines/go-catrate"
	"golang.org/x/sync/semaphore"
)

// Scheduler is any type that can produce a sender whose completion runs on
// the scheduler's execution context. This is the sole collaborator
// interface schedulers must implement; timed variants add ScheduleAfter.
type Scheduler interface {
	// Schedule returns a sender of the empty tuple that completes on this
	// scheduler's execution context.
	Schedule() Sender[struct{}]
}

// TimedScheduler is implemented by schedulers that can delay completion.
// ScheduleAfter(d) is how timeouts are built in this library: as
// StopWhen(work, schedule_after(d)), per spec.md §5.
type TimedScheduler interface {
	Scheduler
	ScheduleAfter(d time.Duration) Sender[struct{}]
}

// InlineScheduler schedules work by running it immediately, on whichever
// goroutine calls Start. Its sender is BlockingAlwaysInline.
type InlineScheduler struct{}

// Schedule implements [Scheduler].
func (InlineScheduler) Schedule() Sender[struct{}] { return Just(struct{}{}) }

// ScheduleAfter implements [TimedScheduler] using a real-time timer; the
// sender itself is not inline (it necessarily suspends), so it does not
// advertise BlockingAlwaysInline.
func (InlineScheduler) ScheduleAfter(d time.Duration) Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			timer := time.AfterFunc(d, func() { r.SetValue(struct{}{}) })
			if cb := r.StopToken().OnStop(func() { timer.Stop() }); cb != nil {
				_ = cb // the timer firing races stop; whichever completes first wins, per spec.md §5
			}
		})
	})
}

// RateLimitedScheduler wraps a [Scheduler], admitting scheduled work only
// when category is currently allowed by a [catrate.Limiter]. If the
// category is rate-limited, the returned sender retries, via the wrapped
// scheduler's ScheduleAfter, until the limiter's reported not-before time
// has passed.
//
// This mirrors how catrate.Limiter.Allow is used in the teacher's own
// limiter_test.go: call Allow, and if refused, wait until the returned
// time before trying again.
type RateLimitedScheduler struct {
	Next     TimedScheduler
	Limiter  *catrate.Limiter
	Category any
}

// RateLimitedSchedulerConfig configures [NewRateLimitedScheduler], following
// the BatcherConfig convention from the teacher's microbatch package: a
// struct parameter rather than a positional-args explosion.
type RateLimitedSchedulerConfig struct {
	// Rates follows [catrate.NewLimiter]'s documented constraints (non-
	// empty, positive, monotonic windows). There is no sensible default, so
	// an empty or invalid Rates panics via catrate.NewLimiter, same as a nil
	// config would.
	Rates map[time.Duration]int
	// Category keys the limiter's independent sliding-window bucket.
	// Defaults to nil, meaning a single shared bucket.
	Category any
}

// NewRateLimitedScheduler constructs a RateLimitedScheduler. A nil config is
// equivalent to &RateLimitedSchedulerConfig{}, which panics via
// catrate.NewLimiter since Rates has no usable zero value.
func NewRateLimitedScheduler(next TimedScheduler, config *RateLimitedSchedulerConfig) *RateLimitedScheduler {
	if next == nil {
		panic("sender: nil scheduler")
	}
	if config == nil {
		config = &RateLimitedSchedulerConfig{}
	}
	return &RateLimitedScheduler{
		Next:     next,
		Limiter:  catrate.NewLimiter(config.Rates),
		Category: config.Category,
	}
}

// Schedule implements [Scheduler].
func (s *RateLimitedScheduler) Schedule() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() { s.attempt(r) })
	})
}

func (s *RateLimitedScheduler) attempt(r Receiver[struct{}]) {
	notBefore, allowed := s.Limiter.Allow(s.Category)
	if allowed {
		logDebug("RateLimitedScheduler", "admitted")
		s.Next.Schedule().Connect(r).Start()
		return
	}

	logDebug("RateLimitedScheduler", "throttled, retrying after delay")
	wait := time.Until(notBefore)
	if wait < 0 {
		wait = 0
	}
	s.Next.ScheduleAfter(wait).Connect(retryReceiver{r, s}).Start()
}

// retryReceiver re-attempts scheduling once the backing delay elapses.
type retryReceiver struct {
	downstream Receiver[struct{}]
	scheduler  *RateLimitedScheduler
}

func (r retryReceiver) SetValue(struct{})   { r.scheduler.attempt(r.downstream) }
func (r retryReceiver) SetError(err error)  { r.downstream.SetError(err) }
func (r retryReceiver) SetDone()            { r.downstream.SetDone() }
func (r retryReceiver) StopToken() StopToken { return r.downstream.StopToken() }

// BoundedScheduler admits at most N concurrently-scheduled senders before
// new schedule requests queue, via a weighted semaphore. Useful for
// wrapping a scheduler backed by a limited resource (a connection pool, a
// fixed worker count).
type BoundedScheduler struct {
	Next TimedScheduler
	sem  *semaphore.Weighted
}

// BoundedSchedulerConfig configures [NewBoundedScheduler], following the
// BatcherConfig convention from the teacher's microbatch package.
type BoundedSchedulerConfig struct {
	// Concurrency caps the number of concurrently in-flight Schedule
	// operations. Defaults to 1 if zero or config is nil.
	Concurrency int64
}

// NewBoundedScheduler constructs a BoundedScheduler. A nil config defaults
// Concurrency to 1.
func NewBoundedScheduler(next TimedScheduler, config *BoundedSchedulerConfig) *BoundedScheduler {
	if next == nil {
		panic("sender: nil scheduler")
	}
	n := int64(1)
	if config != nil && config.Concurrency != 0 {
		n = config.Concurrency
	}
	if n <= 0 {
		panic("sender: non-positive concurrency bound")
	}
	return &BoundedScheduler{Next: next, sem: semaphore.NewWeighted(n)}
}

// Schedule implements [Scheduler]. If the downstream stop token fires
// while waiting for a slot, the sender completes with Done without ever
// acquiring one.
func (s *BoundedScheduler) Schedule() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			ctx, cancel := context.WithCancel(context.Background())
			cb := r.StopToken().OnStop(cancel)
			if err := s.sem.Acquire(ctx, 1); err != nil {
				cb.Unregister()
				r.SetDone()
				return
			}
			cb.Unregister()
			s.Next.Schedule().Connect(releasingReceiver{r, s.sem}).Start()
		})
	})
}

type releasingReceiver struct {
	downstream Receiver[struct{}]
	sem        *semaphore.Weighted
}

func (r releasingReceiver) SetValue(v struct{}) { r.sem.Release(1); r.downstream.SetValue(v) }
func (r releasingReceiver) SetError(err error)  { r.sem.Release(1); r.downstream.SetError(err) }
func (r releasingReceiver) SetDone()            { r.sem.Release(1); r.downstream.SetDone() }
func (r releasingReceiver) StopToken() StopToken { return r.downstream.StopToken() }
