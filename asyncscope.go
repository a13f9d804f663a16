package sender

import "sync/atomic"

// scopeOpenBit is bit 0 of AsyncScope.state: set means the scope still
// accepts new nest/spawn calls. The remaining bits hold the live
// reference count, incremented and decremented by 2 so the open bit is
// never disturbed by a count change, per spec.md §4.10's packed state
// word.
const scopeOpenBit = uint64(1)

// AsyncScope is a structured-concurrency anchor for fire-and-forget work
// that must still be drained before the scope can be discarded. Its
// lifecycle is open -> (nest/spawn any number of times) -> Join requested
// -> drained. The zero value is a closed scope: [Nest] on it degrades to
// Done and [SpawnDetached] returns [ErrScopeClosed]. Use [NewAsyncScope]
// to obtain an open scope.
//
// Per spec.md §9's Open Question resolution, Join only drains outstanding
// work; it never cancels it. Callers that want cancel-on-close should
// compose their own [StopSource] and thread its token through the senders
// they spawn.
type AsyncScope struct {
	state atomic.Uint64
	event ManualResetEvent
}

// NewAsyncScope constructs an open AsyncScope by setting its open bit,
// which the zero value does not have.
func NewAsyncScope() *AsyncScope {
	s := &AsyncScope{}
	s.state.Store(scopeOpenBit)
	return s
}

func (s *AsyncScope) tryAcquire() bool {
	for {
		cur := s.state.Load()
		if cur&scopeOpenBit == 0 {
			return false
		}
		if s.state.CompareAndSwap(cur, cur+2) {
			return true
		}
	}
}

func (s *AsyncScope) release() {
	for {
		cur := s.state.Load()
		next := cur - 2
		if s.state.CompareAndSwap(cur, next) {
			if next>>1 == 0 && next&scopeOpenBit == 0 {
				s.event.Set()
			}
			return
		}
	}
}

// UseCount returns the number of currently outstanding nested or spawned
// operations. Intended for diagnostics.
func (s *AsyncScope) UseCount() int64 { return int64(s.state.Load() >> 1) }

// Nest wraps sender so that its lifetime is tracked by scope. If the scope
// is still open, Nest is a transparent wrapper that releases its
// reference exactly once, on completion. If the scope has already started
// draining (Join called), the returned sender degrades to [JustDone],
// per spec.md §4.10.
func Nest[T any](scope *AsyncScope, s Sender[T]) Sender[T] {
	return nestSender[T]{scope, s}
}

type nestSender[T any] struct {
	scope *AsyncScope
	s     Sender[T]
}

func (n nestSender[T]) Connect(r Receiver[T]) Op {
	if !n.scope.tryAcquire() {
		logDebug("AsyncScope", "nest on closed scope, degrading to just_done")
		return JustDone[T]().Connect(r)
	}
	return n.s.Connect(nestReceiver[T]{n.scope, r})
}

type nestReceiver[T any] struct {
	scope      *AsyncScope
	downstream Receiver[T]
}

func (r nestReceiver[T]) SetValue(v T) { r.scope.release(); r.downstream.SetValue(v) }
func (r nestReceiver[T]) SetError(err error) {
	r.scope.release()
	r.downstream.SetError(err)
}
func (r nestReceiver[T]) SetDone()           { r.scope.release(); r.downstream.SetDone() }
func (r nestReceiver[T]) StopToken() StopToken { return r.downstream.StopToken() }

// SpawnDetached connects and starts s against an internally-allocated
// detached receiver, tracked by scope until s completes. If the scope is
// closed, SpawnDetached returns [ErrScopeClosed] without starting
// anything. If s.Connect panics, the scope's reference is released and
// the panic is re-raised — the strong exception guarantee from spec.md
// §4.10's design.
func SpawnDetached[T any](scope *AsyncScope, s Sender[T]) (err error) {
	if !scope.tryAcquire() {
		return ErrScopeClosed
	}
	defer func() {
		if rec := recover(); rec != nil {
			scope.release()
			panic(rec)
		}
	}()
	op := s.Connect(spawnDetachedReceiver[T]{scope})
	op.Start()
	return nil
}

type spawnDetachedReceiver[T any] struct{ scope *AsyncScope }

func (r spawnDetachedReceiver[T]) SetValue(T) { r.scope.release() }
func (r spawnDetachedReceiver[T]) SetError(err error) {
	r.scope.release()
	logError("AsyncScope", "spawn_detached operation failed", err)
}
func (r spawnDetachedReceiver[T]) SetDone() { r.scope.release() }
func (r spawnDetachedReceiver[T]) StopToken() StopToken { return NeverStopToken{} }

// Join returns a sender that stops accepting new nest calls, then
// completes once every outstanding nested and spawned operation has
// completed. Destroying an AsyncScope before Join's sender has completed
// is a programming error.
func (s *AsyncScope) Join() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			for {
				cur := s.state.Load()
				next := cur &^ scopeOpenBit
				if s.state.CompareAndSwap(cur, next) {
					if next>>1 == 0 {
						s.event.Set()
					}
					break
				}
			}
			s.event.WaitSender().Connect(r).Start()
		})
	})
}
