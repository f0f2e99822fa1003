// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hashedwheel

import (
	"time"

	"github.com/rs/zerolog"
)

// defaultTickDuration is substituted when WithTickDuration is not supplied.
const defaultTickDuration = 100 * time.Millisecond

// defaultTicksPerWheel is substituted when WithTicksPerWheel is not
// supplied.
const defaultTicksPerWheel = 512

// minTickDuration is the floor tick duration; anything supplied below this
// is clamped up, with a warning logged.
const minTickDuration = time.Millisecond

// instanceWarnThreshold is the process-wide instance count past which a
// one-time warning is logged, advising reuse of a single timer instance.
const instanceWarnThreshold = 64

// timerOptions holds resolved configuration for Timer construction.
type timerOptions struct {
	tickDuration       time.Duration
	ticksPerWheel      int
	maxPendingTimeouts int64
	leakDetection      bool
	threadFactory      ThreadFactory
	logger             zerolog.Logger
	warnRateLimit      int
}

// Option configures a Timer instance.
type Option interface {
	applyTimer(*timerOptions) error
}

// optionImpl implements Option by wrapping a closure, matching the
// functional-options shape used throughout this module's ancestor.
type optionImpl struct {
	fn func(*timerOptions) error
}

func (o *optionImpl) applyTimer(opts *timerOptions) error {
	return o.fn(opts)
}

// WithTickDuration sets the duration of a single tick. Values below 1ms are
// clamped up to 1ms with a warning logged.
func WithTickDuration(d time.Duration) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.tickDuration = d
		return nil
	}}
}

// WithTicksPerWheel sets the requested wheel size. It is rounded up to the
// next power of two, capped at 2^30.
func WithTicksPerWheel(n int) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.ticksPerWheel = n
		return nil
	}}
}

// WithMaxPendingTimeouts sets the back-pressure limit. A value <= 0 means
// unbounded (the default).
func WithMaxPendingTimeouts(max int64) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.maxPendingTimeouts = max
		return nil
	}}
}

// WithLeakDetection enables the process-wide leak tracker for this
// instance. See [LeakTracker].
func WithLeakDetection(enabled bool) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.leakDetection = enabled
		return nil
	}}
}

// WithThreadFactory supplies the function responsible for starting the
// worker's run loop. If not supplied, the default factory starts it on a
// plain goroutine.
func WithThreadFactory(factory ThreadFactory) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.threadFactory = factory
		return nil
	}}
}

// WithLogger sets the structured logger used for worker diagnostics
// (clamp warnings, instance-count warnings, task faults). If not supplied,
// a disabled logger is used so the hot path never allocates a log record.
func WithLogger(logger zerolog.Logger) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithWarnRateLimit caps the number of task-fault diagnostic logs emitted
// per second via the internal rate limiter. A value <= 0 disables
// throttling.
func WithWarnRateLimit(perSecond int) Option {
	return &optionImpl{func(opts *timerOptions) error {
		opts.warnRateLimit = perSecond
		return nil
	}}
}

// resolveOptions applies Option instances over the defaults.
func resolveOptions(opts []Option) (*timerOptions, error) {
	cfg := &timerOptions{
		tickDuration:  defaultTickDuration,
		ticksPerWheel: defaultTicksPerWheel,
		logger:        zerolog.Nop(),
		warnRateLimit: 10,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // skip nil options gracefully
		}
		if err := opt.applyTimer(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.threadFactory == nil {
		cfg.threadFactory = defaultThreadFactory
	}
	return cfg, nil
}
