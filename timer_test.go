package hashedwheel

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesArguments(t *testing.T) {
	t.Parallel()

	t.Run("non-positive tick duration", func(t *testing.T) {
		t.Parallel()
		_, err := New(WithTickDuration(0))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("non-positive ticks per wheel", func(t *testing.T) {
		t.Parallel()
		_, err := New(WithTicksPerWheel(0))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("oversized ticks per wheel", func(t *testing.T) {
		t.Parallel()
		_, err := New(WithTicksPerWheel(maxTicksPerWheel + 1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("tick times wheel overflows", func(t *testing.T) {
		t.Parallel()
		_, err := New(
			WithTickDuration(time.Duration(1)<<62),
			WithTicksPerWheel(1024),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestNew_ClampsSubMillisecondTick(t *testing.T) {
	t.Parallel()

	tm, err := New(WithTickDuration(500 * time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, minTickDuration, tm.opts.tickDuration)
}

func TestNew_RoundsTicksPerWheelToPowerOfTwo(t *testing.T) {
	t.Parallel()

	tm, err := New(WithTicksPerWheel(100))
	require.NoError(t, err)
	assert.Equal(t, 128, tm.w.length())
	assert.Equal(t, int64(127), tm.w.mask)
}

func TestTimer_BackPressure(t *testing.T) {
	t.Parallel()

	tm, err := New(
		WithTickDuration(5*time.Millisecond),
		WithMaxPendingTimeouts(3),
	)
	require.NoError(t, err)
	defer tm.Stop()

	for i := 0; i < 3; i++ {
		_, err := tm.NewTimeout(func(*Timeout) {}, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), tm.PendingTimeouts())

	_, err = tm.NewTimeout(func(*Timeout) {}, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int64(3), tm.PendingTimeouts())
}

func TestTimer_CancelBeforePlacement(t *testing.T) {
	t.Parallel()

	tm, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer tm.Stop()

	fired := make(chan struct{}, 1)
	h, err := tm.NewTimeout(func(*Timeout) { fired <- struct{}{} }, time.Minute)
	require.NoError(t, err)

	assert.True(t, h.Cancel())
	assert.True(t, h.IsCancelled())
	assert.False(t, h.Cancel(), "cancelling twice must not re-succeed")

	require.Eventually(t, func() bool {
		return tm.PendingTimeouts() == 0
	}, time.Second, 5*time.Millisecond, "pending_timeouts should drop to 0 within a tick")

	select {
	case <-fired:
		t.Fatal("cancelled task must never fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_BasicOrdering(t *testing.T) {
	t.Parallel()

	tm, err := New(
		WithTickDuration(10*time.Millisecond),
		WithTicksPerWheel(8),
	)
	require.NoError(t, err)
	defer tm.Stop()

	var mu sync.Mutex
	fired := map[string]time.Duration{}
	start := time.Now()
	record := func(name string) Task {
		return func(*Timeout) {
			mu.Lock()
			fired[name] = time.Since(start)
			mu.Unlock()
		}
	}

	for _, name := range []string{"A", "B", "C"} {
		_, err := tm.NewTimeout(record(name), 30*time.Millisecond)
		require.NoError(t, err)
	}
	_, err = tm.NewTimeout(record("D"), 60*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 4
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{"A", "B", "C"} {
		assert.GreaterOrEqualf(t, fired[name], 30*time.Millisecond, "%s fired too early", name)
		assert.Lessf(t, fired[name], 100*time.Millisecond, "%s fired too late", name)
	}
	assert.GreaterOrEqual(t, fired["D"], 60*time.Millisecond)
	assert.Less(t, fired["D"], 150*time.Millisecond)
}

func TestTimer_SlowTaskBlocksWheel(t *testing.T) {
	t.Parallel()

	tm, err := New(
		WithTickDuration(10*time.Millisecond),
		WithTicksPerWheel(8),
	)
	require.NoError(t, err)
	defer tm.Stop()

	start := time.Now()
	var dFired atomic.Int64

	_, err = tm.NewTimeout(func(*Timeout) {}, 30*time.Millisecond)
	require.NoError(t, err)
	_, err = tm.NewTimeout(func(*Timeout) { time.Sleep(100 * time.Millisecond) }, 30*time.Millisecond)
	require.NoError(t, err)
	_, err = tm.NewTimeout(func(*Timeout) { time.Sleep(50 * time.Millisecond) }, 30*time.Millisecond)
	require.NoError(t, err)
	_, err = tm.NewTimeout(func(*Timeout) { dFired.Store(time.Since(start).Nanoseconds()) }, 60*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return dFired.Load() != 0
	}, 2*time.Second, 10*time.Millisecond)

	elapsed := time.Duration(dFired.Load())
	// Serialized: A (instant) + B (100ms sleep) + C (50ms sleep), all run
	// before D, which was only queued for 60ms.
	assert.Greaterf(t, elapsed, 150*time.Millisecond, "D must be delayed by the serialized slow tasks ahead of it, got %s", elapsed)
}

func TestWorker_Place_LongRoundScheduling(t *testing.T) {
	t.Parallel()

	// Deterministic unit test of the placement formula from spec.md §8
	// scenario 6: tick_duration=1ms, wheel=16, delay=50ms. 50ms / 1ms = 50
	// ticks; 50 / 16 = 3 remaining rounds, placed at bucket (50 & 15).
	tm := &Timer{
		opts: &timerOptions{tickDuration: time.Millisecond},
		w:    newWheel(16),
	}

	h := newTimeout(tm, func(*Timeout) {}, (50 * time.Millisecond).Nanoseconds())
	w := &worker{timer: tm, tick: 0}
	w.place(h)

	assert.Equal(t, int64(3), h.remainingRounds)
	assert.Same(t, tm.w.slot(50), h.bucket)
}

func TestTimer_LongRoundScheduling(t *testing.T) {
	t.Parallel()

	tm, err := New(
		WithTickDuration(1*time.Millisecond),
		WithTicksPerWheel(16),
	)
	require.NoError(t, err)
	defer tm.Stop()

	start := time.Now()
	fired := make(chan struct{}, 1)
	_, err = tm.NewTimeout(func(*Timeout) { fired <- struct{}{} }, 50*time.Millisecond)
	require.NoError(t, err)

	select {
	case <-fired:
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
		assert.Less(t, elapsed, 500*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for long-round handle to fire")
	}
}

func TestTimer_StopReturnsUnprocessed(t *testing.T) {
	t.Parallel()

	tm, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)

	_, err = tm.NewTimeout(func(*Timeout) {}, time.Hour)
	require.NoError(t, err)

	// Ensure the worker has started and had a chance to place the handle.
	time.Sleep(20 * time.Millisecond)

	unprocessed, err := tm.Stop()
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
}

func TestTimer_StopOnNeverStartedTimerReturnsEmpty(t *testing.T) {
	t.Parallel()

	tm, err := New()
	require.NoError(t, err)

	unprocessed, err := tm.Stop()
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestTimer_StopFromWorkerGoroutineFails(t *testing.T) {
	t.Parallel()

	tm, err := New(WithTickDuration(5 * time.Millisecond))
	require.NoError(t, err)
	defer tm.Stop()

	result := make(chan error, 1)
	_, err = tm.NewTimeout(func(*Timeout) {
		_, stopErr := tm.Stop()
		result <- stopErr
	}, 5*time.Millisecond)
	require.NoError(t, err)

	select {
	case stopErr := <-result:
		require.Error(t, stopErr)
		assert.ErrorIs(t, stopErr, ErrIllegalState)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSaturatingAddInt64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(30), saturatingAddInt64(10, 20))
	assert.Equal(t, maxWheelRevolutionNanos, saturatingAddInt64(maxWheelRevolutionNanos-1, 10))
	assert.Equal(t, int64(0), saturatingAddInt64(1, -10))
}

// TestElapsedSinceStart_UsesNowFunc exercises the nowFunc seam directly:
// elapsedSinceStart is the one piece of deadline/skew math that reads the
// clock without also depending on the worker's real sleep primitive, so it
// is the part a test can fake honestly. Deliberately not t.Parallel(): it
// mutates the package-level nowFunc var, which every other test's worker
// goroutine also reads, so it must run during the serial phase before any
// parallel subtest's worker starts.
func TestElapsedSinceStart_UsesNowFunc(t *testing.T) {
	tm, err := New()
	require.NoError(t, err)

	tm.startInstant = time.Unix(1000, 0)
	close(tm.startBarrier)
	tm.startBarrierOnce.Do(func() {}) // mark the guard consumed, mirrors closeStartBarrier

	fake := time.Unix(1000, 0).Add(42 * time.Millisecond)
	orig := nowFunc
	nowFunc = func() time.Time { return fake }
	defer func() { nowFunc = orig }()

	assert.Equal(t, (42 * time.Millisecond).Nanoseconds(), tm.elapsedSinceStart())
}

func TestErrorsImplementStandardInterfaces(t *testing.T) {
	t.Parallel()

	err := WrapError("bad stuff", ErrInvalidArgument)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	cause := errors.New("boom")
	fault := &TaskFaultError{Value: cause}
	assert.True(t, errors.Is(fault, cause))

	h1 := &Timeout{}
	h2 := &Timeout{}
	agg := &UnprocessedError{Timeouts: []*Timeout{h1, h2}}
	assert.Len(t, agg.Unwrap(), 2)
}
