package hashedwheel

import (
	"bytes"
	"runtime"
	"strconv"
	"time"
)

// ingressDrainCap bounds the number of ingress submissions placed into
// buckets per tick, per spec.md §4.4, so one overloaded tick cannot starve
// the expire step indefinitely.
const ingressDrainCap = 100_000

// coarseSleepStepMillis is the granularity some hosts schedule sleeps at;
// rounding sleep_ms down to a multiple of this is a platform workaround
// (spec.md §9), not a semantic requirement, so it only applies once the
// computed sleep is already at least one step - otherwise a tick_duration
// finer than the step (e.g. 1ms, per spec.md §8 scenario 6) would be
// rounded all the way down to a busy-spin.
const coarseSleepStepMillis = 10

// worker owns the single dedicated goroutine that advances a Timer's wheel.
// Every field it touches outside of publishing start_time and reading
// worker_state is worker-local by construction (spec.md §5).
type worker struct {
	timer *Timer
	tick  int64
}

// run is the worker loop body: spec.md §4.4 in full. It is invoked via the
// timer's ThreadFactory and never returns until the timer has been stopped.
func (w *worker) run() {
	t := w.timer
	t.workerGoroutineID.Store(currentGoroutineID())

	start := nowFunc()
	t.startInstant = start
	logWorkerStart(t.opts.logger, start.UnixNano(), int(t.opts.tickDuration), t.w.length())
	t.closeStartBarrier()

	defer close(t.doneCh)

	for workerState(t.state.load()) == workerStarted {
		elapsed := w.sleepUntilNextTick()
		if workerState(t.state.load()) != workerStarted {
			break
		}

		w.drainCancellations()
		w.drainIngress()

		t.w.slot(w.tick).expireTimeouts(w, elapsed)

		w.tick++
	}

	w.drainOnShutdown()
}

// sleepUntilNextTick blocks until the next tick boundary (or stopCh closes)
// and returns the elapsed time since start_time, which becomes the deadline
// used for this tick's expiry pass.
func (w *worker) sleepUntilNextTick() int64 {
	t := w.timer
	target := int64(t.opts.tickDuration) * (w.tick + 1)

	for {
		elapsed := int64(nowFunc().Sub(t.startInstant))
		remaining := target - elapsed
		if remaining <= 0 {
			return elapsed
		}

		sleepMillis := (remaining + 999_999) / 1_000_000
		if sleepMillis >= coarseSleepStepMillis {
			sleepMillis -= sleepMillis % coarseSleepStepMillis
		}
		if sleepMillis <= 0 {
			return elapsed
		}

		timer := time.NewTimer(time.Duration(sleepMillis) * time.Millisecond)
		select {
		case <-timer.C:
			// loop again; recompute remaining in case of oversleep/undersleep
		case <-t.stopCh:
			timer.Stop()
			return int64(nowFunc().Sub(t.startInstant))
		}
	}
}

// drainCancellations unlinks every handle currently queued on the
// cancellation ring from whatever bucket it sits in, if any.
func (w *worker) drainCancellations() {
	t := w.timer
	for {
		h, ok := t.cancellations.pop()
		if !ok {
			return
		}
		if h.bucket != nil {
			h.bucket.remove(h)
		}
	}
}

// drainIngress places up to ingressDrainCap freshly submitted handles into
// their target buckets, per spec.md §4.4's drain-ingress step.
func (w *worker) drainIngress() {
	t := w.timer
	for i := 0; i < ingressDrainCap; i++ {
		h, ok := t.ingress.pop()
		if !ok {
			return
		}

		if handleState(h.state.load()) == handleCancelled {
			// Cancelled before ever reaching a bucket: this is the
			// "cancel-before-placement" release site.
			t.releasePending()
			continue
		}

		w.place(h)
	}
}

// place computes a handle's remaining_rounds and installs it into its
// target bucket, clamping past deadlines into the current tick so they
// cannot wrap into a future slot.
func (w *worker) place(h *Timeout) {
	t := w.timer
	tickNanos := int64(t.opts.tickDuration)
	length := int64(t.w.length())

	calc := h.deadline / tickNanos
	h.remainingRounds = (calc - w.tick) / length

	index := calc
	if index < w.tick {
		index = w.tick
	}
	t.w.slot(index).addTimeout(h)
}

// runTask invokes a handle's task, recovering any panic into a logged
// TaskFaultError and recording the firing skew against the handle's ideal
// deadline.
func (w *worker) runTask(h *Timeout) {
	t := w.timer

	actual := int64(nowFunc().Sub(t.startInstant))
	t.metrics.RecordFiring(h, actual)

	defer func() {
		if r := recover(); r != nil {
			logTaskFault(t.opts.logger, t.warnLimiter, &TaskFaultError{Value: r})
		}
	}()
	h.task(h)
}

// drainOnShutdown builds the unprocessed set: every still-INIT handle left
// in a bucket, every still-live ingress submission, and discards the
// cancellation queue (those handles are already terminal).
func (w *worker) drainOnShutdown() {
	t := w.timer
	var unprocessed []*Timeout

	for _, b := range t.w.buckets {
		b.clearTimeouts(&unprocessed)
	}

	for {
		h, ok := t.ingress.pop()
		if !ok {
			break
		}
		if handleState(h.state.load()) == handleInit {
			unprocessed = append(unprocessed, h)
		}
	}

	for {
		_, ok := t.cancellations.pop()
		if !ok {
			break
		}
	}

	t.unprocessedMu.Lock()
	t.unprocessed = unprocessed
	t.unprocessedMu.Unlock()
}

// currentGoroutineID extracts the calling goroutine's ID by parsing the
// leading "goroutine N [...]" line of a single-goroutine stack trace. There
// is no supported API for this; it exists solely to enforce spec.md §4.1's
// "stop() must not be invoked from the worker thread" rule without requiring
// callers to pass a context explicitly.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(buf[:n])
	if len(field) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(field[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
