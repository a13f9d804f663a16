package sender

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
)

// currentGoroutineID returns an identifier for the calling goroutine. The Go
// runtime does not expose one, so this parses the "goroutine N [...]:"
// header that [runtime.Stack] always writes first, the same technique used
// by the wider ecosystem's goroutine-ID helpers (e.g. petermattis/goid).
// Used only to tell apart a stop callback unregistering itself from inside
// its own body from a different goroutine doing so concurrently; never
// exposed outside this file.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// Cancelable is a handle to a registered stop callback. Unregister removes
// the callback; if the callback is concurrently executing on another
// goroutine, Unregister blocks until it finishes, unless it is called from
// within the callback itself (self-deregistration never blocks).
type Cancelable interface {
	// Unregister removes the callback. Safe to call more than once.
	Unregister()
}

// StopToken is a cheap, copyable handle to cancellation state. The zero
// value of a concrete StopToken implementation should behave like a token
// for which stopping is impossible; callers that need that explicitly
// should use [NeverStopToken].
type StopToken interface {
	// StopPossible reports whether this token refers to a live source that
	// could still request stop. A false result is a permanent property of
	// the token.
	StopPossible() bool

	// StopRequested reports whether stop has already been requested.
	StopRequested() bool

	// OnStop registers fn to run when stop is requested. If stop has
	// already been requested, fn runs inline, synchronously, before OnStop
	// returns. fn must not panic.
	OnStop(fn func()) Cancelable
}

const (
	stopFlagRequested uint32 = 1 << 0
	stopFlagLocked    uint32 = 1 << 1
)

// StopSource is an intrusive, allocation-light cancellation source. The
// zero value is a usable, not-yet-stopped source. A StopSource must not be
// copied after first use.
//
// The stop-requested bit and the list-guarding lock bit are packed into a
// single word, so the common path — registering a callback on a source
// that has not been stopped — is a single CAS loop. Each registration
// allocates one list node and one completion channel.
type StopSource struct {
	state atomic.Uint32
	head  atomic.Pointer[stopCallback]

	// running and runningGID together identify which callback is executing
	// right now and on which goroutine, so Unregister can tell self-
	// deregistration (non-blocking) apart from a different goroutine
	// unregistering a callback that is concurrently executing elsewhere
	// (must block until it finishes).
	running    atomic.Pointer[stopCallback]
	runningGID atomic.Uint64
}

// NewStopSource constructs a ready-to-use StopSource. Equivalent to the
// zero value; provided for symmetry with the rest of the package's
// constructors.
func NewStopSource() *StopSource { return &StopSource{} }

func (s *StopSource) lock() {
	for {
		cur := s.state.Load()
		if cur&stopFlagLocked != 0 {
			runtime.Gosched()
			continue
		}
		if s.state.CompareAndSwap(cur, cur|stopFlagLocked) {
			return
		}
	}
}

func (s *StopSource) unlock() {
	for {
		cur := s.state.Load()
		if s.state.CompareAndSwap(cur, cur&^stopFlagLocked) {
			return
		}
	}
}

// StopRequested reports whether [StopSource.RequestStop] has been called.
func (s *StopSource) StopRequested() bool {
	return s.state.Load()&stopFlagRequested != 0
}

// RequestStop requests that the source's token be considered stopped. The
// first call runs every registered callback, synchronously, on the calling
// thread, then returns true. Subsequent calls are no-ops and return false.
//
// Callbacks registered by other goroutines concurrently with this call
// either run here (if they won the registration race) or observe
// StopRequested()==true and invoke themselves inline.
func (s *StopSource) RequestStop() bool {
	s.lock()
	if s.state.Load()&stopFlagRequested != 0 {
		s.unlock()
		return false
	}
	cur := s.state.Load()
	s.state.Store(cur | stopFlagRequested)
	head := s.head.Load()
	s.head.Store(nil)
	s.unlock()

	for cb := head; cb != nil; {
		next := cb.next
		s.invoke(cb)
		cb = next
	}
	return true
}

func (s *StopSource) invoke(cb *stopCallback) {
	s.running.Store(cb)
	s.runningGID.Store(currentGoroutineID())
	func() {
		defer s.running.Store(nil)
		cb.fn()
	}()
	close(cb.done)
}

// Token returns a [StopToken] backed by this source. Cheap; may be copied
// and shared freely.
func (s *StopSource) Token() StopToken { return inplaceStopToken{s} }

type stopCallback struct {
	source *StopSource
	fn     func()
	next   *stopCallback
	done   chan struct{}
}

// register links cb into the source's callback list, or invokes it inline
// if the source is already stopped.
func (s *StopSource) register(fn func()) *stopCallback {
	cb := &stopCallback{source: s, fn: fn, done: make(chan struct{})}

	s.lock()
	if s.state.Load()&stopFlagRequested != 0 {
		s.unlock()
		fn()
		close(cb.done)
		cb.source = nil // already run; Unregister is a no-op
		return cb
	}
	cb.next = s.head.Load()
	s.head.Store(cb)
	s.unlock()
	return cb
}

// Unregister implements [Cancelable]. See [StopSource.register].
func (cb *stopCallback) Unregister() {
	s := cb.source
	if s == nil {
		return // already ran inline at registration time, or already removed
	}

	s.lock()
	// fast path: still linked, remove directly.
	if removeStopCallback(&s.head, cb) {
		s.unlock()
		cb.source = nil
		return
	}
	s.unlock()

	// Not linked: either it has run to completion, or it is running right
	// now. Self-deregistration (called from inside cb.fn, on the same
	// goroutine that is executing it) must not block. A different goroutine
	// calling Unregister while cb.fn runs elsewhere must block on cb.done,
	// per the "no callback runs after its destructor returns" contract.
	if s.running.Load() == cb && s.runningGID.Load() == currentGoroutineID() {
		cb.source = nil
		return
	}
	<-cb.done
	cb.source = nil
}

func removeStopCallback(head *atomic.Pointer[stopCallback], target *stopCallback) bool {
	cur := head.Load()
	if cur == target {
		head.Store(cur.next)
		return true
	}
	for cur != nil {
		if cur.next == target {
			cur.next = target.next
			return true
		}
		cur = cur.next
	}
	return false
}

type inplaceStopToken struct{ source *StopSource }

func (t inplaceStopToken) StopPossible() bool  { return t.source != nil }
func (t inplaceStopToken) StopRequested() bool { return t.source != nil && t.source.StopRequested() }
func (t inplaceStopToken) OnStop(fn func()) Cancelable {
	if t.source == nil {
		return noopCancelable{}
	}
	return t.source.register(fn)
}

type noopCancelable struct{}

func (noopCancelable) Unregister() {}

// NeverStopToken is a [StopToken] for which stopping is never possible. It
// is the default token returned by receivers that do not support
// cancellation.
type NeverStopToken struct{}

func (NeverStopToken) StopPossible() bool          { return false }
func (NeverStopToken) StopRequested() bool         { return false }
func (NeverStopToken) OnStop(func()) Cancelable    { return noopCancelable{} }

// combinedStopToken reports stopped if either underlying token is stopped,
// and forwards OnStop to both, de-duplicating the callback invocation with
// a sync.Once-like guard.
type combinedStopToken struct{ a, b StopToken }

// CombineStopTokens returns a token that is stopped as soon as either a or
// b is stopped. Used by adapters (e.g. [StopWhen]) that must merge an
// outer cancellation token with one of their own.
func CombineStopTokens(a, b StopToken) StopToken { return combinedStopToken{a, b} }

func (c combinedStopToken) StopPossible() bool { return c.a.StopPossible() || c.b.StopPossible() }
func (c combinedStopToken) StopRequested() bool {
	return c.a.StopRequested() || c.b.StopRequested()
}

func (c combinedStopToken) OnStop(fn func()) Cancelable {
	var fired atomic.Bool
	wrapped := func() {
		if fired.CompareAndSwap(false, true) {
			fn()
		}
	}
	return compositeCancelable{c.a.OnStop(wrapped), c.b.OnStop(wrapped)}
}

type compositeCancelable struct{ a, b Cancelable }

func (c compositeCancelable) Unregister() {
	c.a.Unregister()
	c.b.Unregister()
}
