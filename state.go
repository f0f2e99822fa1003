package hashedwheel

import (
	"sync/atomic"
)

// handleState is the lifecycle state of a [Timeout] handle.
type handleState uint64

const (
	// handleInit is the state of a handle from creation until it is either
	// cancelled or expires.
	handleInit handleState = 0
	// handleCancelled is terminal: the owner called Cancel before the
	// worker fired the callback.
	handleCancelled handleState = 1
	// handleExpired is terminal: the worker invoked the callback.
	handleExpired handleState = 2
)

// workerState is the lifecycle state of the timer's worker goroutine.
// Transitions are one-way: INIT -> STARTED -> SHUTDOWN.
type workerState uint64

const (
	workerInit     workerState = 0
	workerStarted  workerState = 1
	workerShutdown workerState = 2
)

// fastState is a lock-free state machine with cache-line padding, shared by
// handleState and workerState transitions.
//
// PERFORMANCE: pure atomic CAS, no mutex. Cache-line padding prevents false
// sharing between cores when many handles or one timer's worker state are
// transitioned concurrently.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte // cache line padding (before value)
	v atomic.Uint64
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte // pad to complete cache line
}

// newFastState creates a state machine initialized to the given value.
func newFastState(initial uint64) *fastState {
	s := &fastState{}
	s.v.Store(initial)
	return s
}

// load returns the current state atomically. No validation; trusts the
// stored value.
func (s *fastState) load() uint64 {
	return s.v.Load()
}

// tryTransition attempts to atomically transition from one state to
// another, returning true on success.
func (s *fastState) tryTransition(from, to uint64) bool {
	return s.v.CompareAndSwap(from, to)
}

// store atomically stores a new state, bypassing CAS validation. Used only
// for the forced-shutdown path where the transition is unconditional.
func (s *fastState) store(to uint64) {
	s.v.Store(to)
}
