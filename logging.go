package hashedwheel

import "github.com/rs/zerolog"

// Field name constants used across the worker's structured log lines, kept
// consistent so downstream log aggregation queries stay stable across
// releases.
const (
	logFieldTick          = "tick"
	logFieldPendingCount  = "pending"
	logFieldTickDuration  = "tick_duration"
	logFieldTicksPerWheel = "ticks_per_wheel"
)

// logWorkerStart emits a debug line when the worker goroutine begins.
func logWorkerStart(logger zerolog.Logger, startTime int64, tickDuration, wheelLength int) {
	logger.Debug().
		Int64("start_time_ns", startTime).
		Int(logFieldTickDuration, tickDuration).
		Int(logFieldTicksPerWheel, wheelLength).
		Msg("hashedwheel: worker started")
}

// logTickClamped warns once at construction time that a sub-millisecond
// tick duration was clamped up to 1ms.
func logTickClamped(logger zerolog.Logger, requestedNanos, clampedNanos int64) {
	logger.Warn().
		Int64("requested_ns", requestedNanos).
		Int64("clamped_ns", clampedNanos).
		Msg("hashedwheel: tick duration below 1ms clamped up")
}

// logWheelRounded logs, at debug level, the power-of-two rounding applied
// to the requested wheel size.
func logWheelRounded(logger zerolog.Logger, requested, actual int) {
	logger.Debug().
		Int("requested", requested).
		Int("actual", actual).
		Msg("hashedwheel: ticks_per_wheel rounded to next power of two")
}

// logRejected logs, at debug level, a submission rejected by back-pressure.
func logRejected(logger zerolog.Logger, pending, max int64) {
	logger.Debug().
		Int64(logFieldPendingCount, pending).
		Int64("max_pending_timeouts", max).
		Msg("hashedwheel: submission rejected, max_pending_timeouts exceeded")
}

// logTaskFault logs, at warn level, a recovered task panic - unless the
// rate limiter says this log category is currently throttled.
func logTaskFault(logger zerolog.Logger, limiter *warnLimiter, value any) {
	if !limiter.allow("task_fault") {
		return
	}
	logger.Warn().
		Interface("panic", value).
		Msg("hashedwheel: task panicked, worker continues")
}
