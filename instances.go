package hashedwheel

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LeakTracker is an optional hook for tracking live Timer instances across
// their lifetime, for diagnosing callers who forget to call Stop. Attach
// one via WithLeakDetection combined with SetLeakTracker; the default is a
// no-op.
type LeakTracker interface {
	// Track registers a newly started timer instance, returning a closer
	// invoked when the timer reaches SHUTDOWN.
	Track(timer *Timer) (closer func())
}

type noopLeakTracker struct{}

func (noopLeakTracker) Track(*Timer) (closer func()) { return func() {} }

var (
	// instanceCount is the process-wide count of constructed Timer
	// instances that have started their worker.
	instanceCount atomic.Int64

	// instanceWarnOnce ensures the "too many instances" warning is logged
	// at most once per process, per spec.md §4.1.
	instanceWarnOnce sync.Once

	// leakTracker is the process-wide hook; defaults to a no-op.
	leakTrackerMu sync.RWMutex
	leakTracker   LeakTracker = noopLeakTracker{}
)

// SetLeakTracker installs a process-wide LeakTracker. Passing nil restores
// the no-op default.
func SetLeakTracker(t LeakTracker) {
	leakTrackerMu.Lock()
	defer leakTrackerMu.Unlock()
	if t == nil {
		t = noopLeakTracker{}
	}
	leakTracker = t
}

func getLeakTracker() LeakTracker {
	leakTrackerMu.RLock()
	defer leakTrackerMu.RUnlock()
	return leakTracker
}

// registerInstance increments the process-wide counter, warns once past
// instanceWarnThreshold, and - if leakDetection is enabled - attaches the
// leak tracker. It is called only when the worker starts, and returns a
// closer to call when the timer transitions to SHUTDOWN.
func registerInstance(logger zerolog.Logger, leakDetection bool, timer *Timer) (closer func()) {
	count := instanceCount.Add(1)
	if count > instanceWarnThreshold {
		instanceWarnOnce.Do(func() {
			logger.Warn().
				Int64("count", count).
				Int64("threshold", instanceWarnThreshold).
				Msg("hashedwheel: excessive Timer instances created; consider reusing a single instance")
		})
	}

	var trackerCloser func()
	if leakDetection {
		trackerCloser = getLeakTracker().Track(timer)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			instanceCount.Add(-1)
			if trackerCloser != nil {
				trackerCloser()
			}
		})
	}
}
