package hashedwheel

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned (wrapped) when constructor arguments fail
// validation: non-positive tick duration, non-positive or oversized
// ticks-per-wheel, or a tick-duration*ticks-per-wheel product that would
// overflow a full wheel revolution.
var ErrInvalidArgument = errors.New("hashedwheel: invalid argument")

// ErrIllegalState is returned (wrapped) when an operation is attempted in a
// state that forbids it: starting a timer after it has been shut down, or
// calling Stop from within a task callback running on the worker goroutine.
var ErrIllegalState = errors.New("hashedwheel: illegal state")

// ErrRejected is returned (wrapped) when a submission would exceed the
// configured WithMaxPendingTimeouts back-pressure limit.
var ErrRejected = errors.New("hashedwheel: rejected")

// TaskFaultError wraps a value recovered from a panicking task callback.
// The worker logs it at warn level and continues running; it is never
// returned to a caller, only exposed for tests and for logging.
type TaskFaultError struct {
	Value any
}

// Error implements the error interface.
func (e *TaskFaultError) Error() string {
	return fmt.Sprintf("hashedwheel: task panicked: %v", e.Value)
}

// Unwrap returns the recovered value if it is itself an error, enabling
// [errors.Is] and [errors.As] through the cause chain.
func (e *TaskFaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// UnprocessedError aggregates the timeouts returned by [Timer.Stop] that had
// neither fired nor been observed cancelled at shutdown time. It is not
// itself a failure - Stop returns the handles directly - but callers that
// want to report them as a single error (e.g. for logging) can wrap them
// this way.
type UnprocessedError struct {
	Timeouts []*Timeout
}

// Error implements the error interface.
func (e *UnprocessedError) Error() string {
	return fmt.Sprintf("hashedwheel: %d unprocessed timeout(s) at shutdown", len(e.Timeouts))
}

// Unwrap exposes the per-handle cancellation as a slice of errors, one per
// unprocessed timeout, so errors.Is/errors.As can inspect each in turn.
func (e *UnprocessedError) Unwrap() []error {
	errs := make([]error, len(e.Timeouts))
	for i, h := range e.Timeouts {
		errs[i] = fmt.Errorf("hashedwheel: timeout %p left unprocessed at shutdown", h)
	}
	return errs
}

// WrapError wraps an error with a message and cause chain, matching the
// style used throughout this package for surfacing validation failures.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
