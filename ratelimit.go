package hashedwheel

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// warnLimiter throttles repeated diagnostic log lines (task faults) so a
// pathological workload - thousands of panicking callbacks - cannot itself
// turn the worker's logging into a source of back-pressure.
type warnLimiter struct {
	limiter *catrate.Limiter
}

// newWarnLimiter builds a per-second sliding-window limiter. perSecond <= 0
// disables throttling (every call to allow returns true).
func newWarnLimiter(perSecond int) *warnLimiter {
	if perSecond <= 0 {
		return &warnLimiter{}
	}
	return &warnLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: perSecond,
		}),
	}
}

// allow reports whether a diagnostic log of the given category may be
// emitted right now.
func (w *warnLimiter) allow(category string) bool {
	if w.limiter == nil {
		return true
	}
	_, ok := w.limiter.Allow(category)
	return ok
}
