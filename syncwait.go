package sender

import "sync"

// SyncWait drives s to completion on the calling goroutine and returns a
// pointer to its value, or nil if s completed with Done. If s completes
// with an error, SyncWait returns that error.
func SyncWait[T any](s Sender[T]) (*T, error) {
	return SyncWaitWithToken(s, NeverStopToken{})
}

// SyncWaitWithToken is [SyncWait] with a caller-supplied stop token, so
// the wait can be cancelled externally.
func SyncWaitWithToken[T any](s Sender[T], token StopToken) (*T, error) {
	switch SenderBlocking(s) {
	case BlockingAlwaysInline, BlockingAlways:
		return syncWaitInline(s, token)
	default:
		return syncWaitBlocking(s, token)
	}
}

// syncWaitPromiseState mirrors spec.md §4.9's tagged union
// {incomplete, done, value(T), error(E)}.
type syncWaitPromiseState int

const (
	syncWaitIncomplete syncWaitPromiseState = iota
	syncWaitHasValue
	syncWaitHasError
	syncWaitHasDone
)

// syncWaitInline is used for always_inline/always senders: the receiver's
// signal is guaranteed to run before Start returns, or at least on the
// calling goroutine with no concurrent writer, so no synchronization is
// needed beyond plain fields.
func syncWaitInline[T any](s Sender[T], token StopToken) (*T, error) {
	recv := &syncWaitInlineReceiver[T]{token: token}
	s.Connect(recv).Start()
	return recv.result()
}

type syncWaitInlineReceiver[T any] struct {
	token StopToken
	state syncWaitPromiseState
	value T
	err   error
}

func (r *syncWaitInlineReceiver[T]) SetValue(v T)   { r.value, r.state = v, syncWaitHasValue }
func (r *syncWaitInlineReceiver[T]) SetError(e error) { r.err, r.state = e, syncWaitHasError }
func (r *syncWaitInlineReceiver[T]) SetDone()       { r.state = syncWaitHasDone }
func (r *syncWaitInlineReceiver[T]) StopToken() StopToken { return r.token }

func (r *syncWaitInlineReceiver[T]) result() (*T, error) {
	switch r.state {
	case syncWaitHasValue:
		v := r.value
		return &v, nil
	case syncWaitHasError:
		return nil, r.err
	default:
		return nil, nil
	}
}

// syncWaitBlocking is used for maybe/never senders: the calling goroutine
// blocks on a mutex+condvar-guarded promise until the receiver settles.
func syncWaitBlocking[T any](s Sender[T], token StopToken) (*T, error) {
	recv := &syncWaitBlockingReceiver[T]{token: token}
	recv.cond = sync.NewCond(&recv.mu)

	op := s.Connect(recv)
	op.Start()

	recv.mu.Lock()
	for recv.state == syncWaitIncomplete {
		recv.cond.Wait()
	}
	defer recv.mu.Unlock()

	switch recv.state {
	case syncWaitHasValue:
		v := recv.value
		return &v, nil
	case syncWaitHasError:
		return nil, recv.err
	default:
		return nil, nil
	}
}

type syncWaitBlockingReceiver[T any] struct {
	token StopToken
	mu    sync.Mutex
	cond  *sync.Cond
	state syncWaitPromiseState
	value T
	err   error
}

func (r *syncWaitBlockingReceiver[T]) settle(state syncWaitPromiseState, v T, err error) {
	r.mu.Lock()
	r.state = state
	r.value = v
	r.err = err
	r.mu.Unlock()
	r.cond.Signal()
}

func (r *syncWaitBlockingReceiver[T]) SetValue(v T)   { r.settle(syncWaitHasValue, v, nil) }
func (r *syncWaitBlockingReceiver[T]) SetError(e error) { r.settle(syncWaitHasError, *new(T), e) }
func (r *syncWaitBlockingReceiver[T]) SetDone()       { r.settle(syncWaitHasDone, *new(T), nil) }
func (r *syncWaitBlockingReceiver[T]) StopToken() StopToken { return r.token }
