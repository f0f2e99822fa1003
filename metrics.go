package hashedwheel

import (
	"sync"
	"time"
)

// FiringSkewMetrics tracks the distribution of firing skew - the delay
// between a [Timeout]'s ideal deadline and the moment the worker actually
// invoked its task - across every expired Timeout. This is the quantity
// spec.md §8's "late skew is bounded by tick_duration + ε_os" invariant is
// about, so a timer under test or in production can assert against it
// directly rather than inferring it from wall-clock timestamps around
// individual calls.
//
// Thread Safety: safe for concurrent RecordFiring/Sample from any
// goroutine, though in practice RecordFiring is only ever called from the
// worker goroutine immediately before a task callback runs.
type FiringSkewMetrics struct {
	mu      sync.Mutex
	psquare *pSquareMultiQuantile

	P50, P90, P95, P99, Max time.Duration
	Mean                    time.Duration
}

// RecordFiring records the skew between h's ideal deadline and firedAtNanos
// - the instant, in nanoseconds elapsed since the timer's start_time, that
// the worker is about to invoke h's task. Called once per expired handle,
// immediately before runTask invokes the callback.
func (m *FiringSkewMetrics) RecordFiring(h *Timeout, firedAtNanos int64) {
	skew := time.Duration(firedAtNanos-h.deadline) * time.Nanosecond

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.psquare == nil {
		m.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	m.psquare.Update(float64(skew))
}

// Sample recomputes the cached percentile fields from firings recorded so
// far and returns the number of samples used. The underlying P-Square
// estimator already handles the low-sample-count case itself (exact order
// statistics below 5 observations), so there is no separate fallback path
// to duplicate here.
func (m *FiringSkewMetrics) Sample() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.psquare == nil {
		return 0
	}

	m.P50 = time.Duration(m.psquare.Quantile(0))
	m.P90 = time.Duration(m.psquare.Quantile(1))
	m.P95 = time.Duration(m.psquare.Quantile(2))
	m.P99 = time.Duration(m.psquare.Quantile(3))
	m.Max = time.Duration(m.psquare.Max())
	m.Mean = time.Duration(m.psquare.Mean())
	return m.psquare.Count()
}
