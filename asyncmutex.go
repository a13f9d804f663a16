package sender

import "sync"

// AsyncMutex is an intrusive FIFO queue of waiters guarded by a single
// lock bit, per spec.md §4.11. The zero value is a usable, unlocked mutex.
type AsyncMutex struct {
	mu         sync.Mutex
	locked     bool
	head, tail *asyncMutexWaiter
}

type asyncMutexWaiter struct {
	next *asyncMutexWaiter
	fn   func()
}

// Lock returns a sender that completes with Value once the mutex is held.
// If uncontended, completion is inline; otherwise the waiter is queued and
// completes when [AsyncMutex.Unlock] hands off the lock to it.
func (m *AsyncMutex) Lock() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			m.mu.Lock()
			if !m.locked {
				m.locked = true
				m.mu.Unlock()
				r.SetValue(struct{}{})
				return
			}
			w := &asyncMutexWaiter{fn: func() { r.SetValue(struct{}{}) }}
			if m.tail == nil {
				m.head = w
			} else {
				m.tail.next = w
			}
			m.tail = w
			m.mu.Unlock()
			logWarn("AsyncMutex", "lock contended, waiter queued")
		})
	})
}

// Unlock releases the mutex, handing it off to the next queued waiter (if
// any) by invoking that waiter's completion, never holding the internal
// lock across that call.
func (m *AsyncMutex) Unlock() {
	m.mu.Lock()
	w := m.head
	if w == nil {
		m.locked = false
		m.mu.Unlock()
		return
	}
	m.head = w.next
	if m.head == nil {
		m.tail = nil
	}
	m.mu.Unlock()
	w.fn()
}

// SharedAsyncMutex is the reader/writer variant built on top of
// [AsyncMutex], per spec.md §4.11: any number of shared (reader) holders
// may proceed concurrently, but an exclusive (writer) holder excludes all
// others.
type SharedAsyncMutex struct {
	excl    AsyncMutex
	countMu sync.Mutex
	readers int
	// acquired is true once the first reader's underlying excl.Lock() has
	// actually settled. readers==1 alone does not imply this: that first
	// reader may still be queued behind a writer. Readers that arrive in
	// that window must wait on waiters, not take the fast path.
	acquired bool
	waiters  []func()
}

// LockShared acquires the mutex for shared (read) access. The first reader
// to arrive acquires the underlying exclusive lock on behalf of all
// concurrent readers; later readers piggyback, but only once that first
// acquisition has actually completed, not merely been requested.
func (m *SharedAsyncMutex) LockShared() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Op {
		return OpFunc(func() {
			m.countMu.Lock()
			m.readers++
			switch {
			case m.readers == 1:
				m.countMu.Unlock()
				m.excl.Lock().Connect(sharedFirstReaderReceiver{m, r}).Start()
			case m.acquired:
				m.countMu.Unlock()
				r.SetValue(struct{}{})
			default:
				// A first reader is still queued behind a writer; this
				// reader must wait for that acquisition to settle too,
				// rather than racing ahead of it.
				m.waiters = append(m.waiters, func() { r.SetValue(struct{}{}) })
				m.countMu.Unlock()
				logWarn("SharedAsyncMutex", "reader queued behind in-flight first-reader acquisition")
			}
		})
	})
}

// sharedFirstReaderReceiver wraps the first reader's underlying exclusive
// acquisition so that later readers are only admitted once it actually
// settles, not merely once it is requested.
type sharedFirstReaderReceiver struct {
	m          *SharedAsyncMutex
	downstream Receiver[struct{}]
}

func (r sharedFirstReaderReceiver) SetValue(v struct{}) {
	r.m.countMu.Lock()
	r.m.acquired = true
	waiters := r.m.waiters
	r.m.waiters = nil
	r.m.countMu.Unlock()
	r.downstream.SetValue(v)
	for _, w := range waiters {
		w()
	}
}
func (r sharedFirstReaderReceiver) SetError(err error) { r.downstream.SetError(err) }
func (r sharedFirstReaderReceiver) SetDone()           { r.downstream.SetDone() }
func (r sharedFirstReaderReceiver) StopToken() StopToken {
	return r.downstream.StopToken()
}

// UnlockShared releases one shared holder's claim. The underlying
// exclusive lock is released only once the last reader unlocks.
func (m *SharedAsyncMutex) UnlockShared() {
	m.countMu.Lock()
	m.readers--
	last := m.readers == 0
	if last {
		m.acquired = false
	}
	m.countMu.Unlock()
	if last {
		m.excl.Unlock()
	}
}

// LockExclusive acquires the mutex for exclusive (write) access.
func (m *SharedAsyncMutex) LockExclusive() Sender[struct{}] { return m.excl.Lock() }

// UnlockExclusive releases exclusive access.
func (m *SharedAsyncMutex) UnlockExclusive() { m.excl.Unlock() }
