package hashedwheel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// maxWheelRevolutionNanos is the ceiling against which tickDuration *
// ticksPerWheel is checked at construction: the wheel must not be able to
// represent a full revolution longer than the clock range (spec.md §4.1).
const maxWheelRevolutionNanos = int64(1)<<63 - 1

// nowFunc is the monotonic clock source, overridable only by tests (see
// SPEC_FULL.md's ambient test-tooling section); production code always
// goes through time.Now, never a wall clock.
var nowFunc = time.Now

// Timer is the hashed-wheel scheduler facade: construction, validation,
// lifecycle, and the NewTimeout/Stop/PendingTimeouts operations described
// by spec.md §4.1.
type Timer struct {
	opts *timerOptions
	w    *wheel

	ingress       *ring[*Timeout]
	cancellations *ring[*Timeout]

	state *fastState // workerState

	pendingTimeouts atomic.Int64

	startBarrierOnce sync.Once
	startBarrier     chan struct{}
	startErr         error
	startInstant     time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	unprocessedMu sync.Mutex
	unprocessed   []*Timeout

	workerGoroutineID atomic.Int64 // 0 until the worker publishes its ID

	metrics     *FiringSkewMetrics
	warnLimiter *warnLimiter

	instanceCloserMu sync.Mutex
	instanceCloser   func()
}

// New constructs a Timer. Validation failures are wrapped with
// ErrInvalidArgument.
func New(opts ...Option) (*Timer, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if cfg.tickDuration <= 0 {
		return nil, WrapError(fmt.Sprintf("tick_duration must be positive, got %s", cfg.tickDuration), ErrInvalidArgument)
	}
	if cfg.ticksPerWheel <= 0 {
		return nil, WrapError(fmt.Sprintf("ticks_per_wheel must be positive, got %d", cfg.ticksPerWheel), ErrInvalidArgument)
	}
	if cfg.ticksPerWheel > maxTicksPerWheel {
		return nil, WrapError(fmt.Sprintf("ticks_per_wheel must be <= %d, got %d", maxTicksPerWheel, cfg.ticksPerWheel), ErrInvalidArgument)
	}

	if cfg.tickDuration < minTickDuration {
		logTickClamped(cfg.logger, int64(cfg.tickDuration), int64(minTickDuration))
		cfg.tickDuration = minTickDuration
	}

	requestedWheel := cfg.ticksPerWheel
	w := newWheel(requestedWheel)
	if w.length() != requestedWheel {
		logWheelRounded(cfg.logger, requestedWheel, w.length())
	}

	// Compared by division so the check itself cannot overflow:
	// tick*length >= max  <=>  tick > (max-1)/length.
	if int64(cfg.tickDuration) > (maxWheelRevolutionNanos-1)/int64(w.length()) {
		return nil, WrapError("tick_duration * ticks_per_wheel overflows a representable wheel revolution", ErrInvalidArgument)
	}

	t := &Timer{
		opts:          cfg,
		w:             w,
		ingress:       newRing[*Timeout](),
		cancellations: newRing[*Timeout](),
		state:         newFastState(uint64(workerInit)),
		startBarrier:  make(chan struct{}),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		metrics:       &FiringSkewMetrics{},
		warnLimiter:   newWarnLimiter(cfg.warnRateLimit),
	}
	return t, nil
}

// start performs the lazy worker start described in spec.md §4.4: the
// first caller's CAS wins and spawns the worker via the configured
// ThreadFactory; all callers (winner and losers alike) block on the start
// barrier until start_time has been published. Returns ErrIllegalState if
// the timer has already been shut down.
func (t *Timer) start() error {
	if t.state.tryTransition(uint64(workerInit), uint64(workerStarted)) {
		closer := registerInstance(t.opts.logger, t.opts.leakDetection, t)
		t.instanceCloserMu.Lock()
		t.instanceCloser = closer
		t.instanceCloserMu.Unlock()

		w := &worker{timer: t}
		t.opts.threadFactory(w.run)
	}

	<-t.startBarrier

	if workerState(t.state.load()) == workerShutdown && t.startErr == nil {
		return WrapError("timer already shut down", ErrIllegalState)
	}
	return t.startErr
}

// closeStartBarrier releases every goroutine blocked in start(), guarded so
// it is safe to call from both worker.run() (the normal publish-start_time
// path) and Stop()'s force-shutdown path (a timer stopped before its worker
// ever ran would otherwise leave start() blocked forever).
func (t *Timer) closeStartBarrier() {
	t.startBarrierOnce.Do(func() { close(t.startBarrier) })
}

// elapsedSinceStart returns nanoseconds elapsed since start_time, or 0 if
// the worker has not yet published it. Only meaningful after start() has
// returned without error.
func (t *Timer) elapsedSinceStart() int64 {
	select {
	case <-t.startBarrier:
		return int64(nowFunc().Sub(t.startInstant))
	default:
		return 0
	}
}

// releasePending decrements pending_timeouts. This is the sole decrement
// site, called from the places enumerated in DESIGN.md.
func (t *Timer) releasePending() {
	t.pendingTimeouts.Add(-1)
}

// PendingTimeouts returns the current pending-timeout count.
func (t *Timer) PendingTimeouts() int64 {
	return t.pendingTimeouts.Load()
}

// NewTimeout schedules task to run after delay, returning a handle usable
// for cancellation and state queries. It fails with ErrRejected if
// WithMaxPendingTimeouts is set and would be exceeded, or with
// ErrIllegalState if the timer has already been shut down.
func (t *Timer) NewTimeout(task Task, delay time.Duration) (*Timeout, error) {
	count := t.pendingTimeouts.Add(1)

	if max := t.opts.maxPendingTimeouts; max > 0 && count > max {
		t.releasePending()
		logRejected(t.opts.logger, count-1, max)
		return nil, WrapError(fmt.Sprintf("max_pending_timeouts (%d) exceeded", max), ErrRejected)
	}

	if err := t.start(); err != nil {
		t.releasePending()
		return nil, err
	}

	elapsed := t.elapsedSinceStart()
	deadline := saturatingAddInt64(elapsed, delay.Nanoseconds())

	h := newTimeout(t, task, deadline)
	t.ingress.push(h)
	return h, nil
}

// Stop must not be invoked from the worker goroutine (fails with
// ErrIllegalState). It otherwise blocks until the worker exits, returning
// the set of timeouts that had neither fired nor been observed cancelled
// at shutdown time.
func (t *Timer) Stop() ([]*Timeout, error) {
	if t.isWorkerGoroutine() {
		return nil, WrapError("Stop must not be called from within a task callback", ErrIllegalState)
	}

	if !t.state.tryTransition(uint64(workerStarted), uint64(workerShutdown)) {
		// Either never started, or already shut down: force SHUTDOWN and
		// return an empty set, per spec.md §4.1. Closing the start barrier
		// here too matters for the never-started case - otherwise a
		// concurrent or subsequent start() (via NewTimeout) would block on
		// it forever, since worker.run() (the only other closer) never gets
		// spawned.
		t.state.store(uint64(workerShutdown))
		t.closeStartBarrier()
		return nil, nil
	}

	t.stopOnce.Do(func() { close(t.stopCh) })

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-t.doneCh:
			t.instanceCloserMu.Lock()
			closer := t.instanceCloser
			t.instanceCloserMu.Unlock()
			if closer != nil {
				closer()
			}

			t.unprocessedMu.Lock()
			result := t.unprocessed
			t.unprocessedMu.Unlock()
			return result, nil
		case <-ticker.C:
			// Mirrors the original's repeated interrupt+join retry: Go has
			// no thread-interrupt primitive, so stopCh closing is the one
			// "interrupt" the worker ever observes; this just re-checks
			// doneCh on a bounded interval while a slow task runs.
		}
	}
}

// isWorkerGoroutine reports whether the calling goroutine is this timer's
// worker goroutine, used to enforce spec.md §4.1's "stop() must not be
// invoked from the worker thread" rule.
func (t *Timer) isWorkerGoroutine() bool {
	id := t.workerGoroutineID.Load()
	return id != 0 && id == currentGoroutineID()
}

// saturatingAddInt64 adds b to a, saturating to MaxInt64 on overflow rather
// than wrapping, per spec.md §4.1's "saturating to MAX_I64 on overflow".
func saturatingAddInt64(a, b int64) int64 {
	sum := a + b
	if b > 0 && sum < a {
		return maxWheelRevolutionNanos
	}
	if b < 0 && sum > a {
		return 0
	}
	return sum
}
