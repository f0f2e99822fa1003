package hashedwheel

import (
	"fmt"
	"time"
)

// Timeout is a submitter's opaque reference to a scheduled task. It is also
// the intrusive list node used by the bucket it is placed in - only the
// worker goroutine touches prev, next, bucket, and remainingRounds.
type Timeout struct {
	timer *Timer
	task  Task

	// deadline is nanoseconds relative to the timer's start_time.
	deadline int64

	// remainingRounds counts full wheel revolutions to skip before this
	// handle is eligible to fire on its bucket's visit. Meaningless until
	// the worker places the handle into a bucket.
	remainingRounds int64

	state *fastState

	// worker-only fields below; never touched outside the worker goroutine.
	prev, next *Timeout
	bucket     *bucket
}

// newTimeout constructs a handle in the INIT state. It does not enqueue
// itself anywhere; that is the caller's (Timer.NewTimeout's) job.
func newTimeout(timer *Timer, task Task, deadline int64) *Timeout {
	return &Timeout{
		timer:    timer,
		task:     task,
		deadline: deadline,
		state:    newFastState(uint64(handleInit)),
	}
}

// Cancel attempts to move the handle from INIT to CANCELLED. It returns
// true if this call performed the transition (the handle was not already
// cancelled or expired). On success the handle is pushed onto the timer's
// cancellation queue for unlinking by the worker; the handle is not removed
// from its bucket immediately, so reclamation may lag by up to one tick.
func (h *Timeout) Cancel() bool {
	if !h.state.tryTransition(uint64(handleInit), uint64(handleCancelled)) {
		return false
	}
	h.timer.cancellations.push(h)
	return true
}

// IsCancelled reports whether Cancel has successfully transitioned this
// handle.
func (h *Timeout) IsCancelled() bool {
	return handleState(h.state.load()) == handleCancelled
}

// IsExpired reports whether the worker has fired this handle's callback.
func (h *Timeout) IsExpired() bool {
	return handleState(h.state.load()) == handleExpired
}

// Task returns the callback this handle will invoke (or would have
// invoked, if cancelled first).
func (h *Timeout) Task() Task {
	return h.task
}

// Timer returns the timer instance that owns this handle.
func (h *Timeout) Timer() *Timer {
	return h.timer
}

// String returns a human-readable form noting the deadline relative to now
// and the cancellation/expiry status, useful for diagnostics.
func (h *Timeout) String() string {
	state := handleState(h.state.load())
	var status string
	switch state {
	case handleCancelled:
		status = "cancelled"
	case handleExpired:
		status = "expired"
	default:
		status = "pending"
	}

	elapsed := h.timer.elapsedSinceStart()
	remaining := time.Duration(h.deadline-elapsed) * time.Nanosecond
	return fmt.Sprintf("Timeout(deadline=%s, status=%s)", remaining, status)
}
