package engine

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// File options.go provides options that can be passed to the engine constructor to configure it.

// Option function to set various options on the engine.
// Uses defaults if an option is not set.
type Option func(*Engine)

// WithLogger replaces the engine's default logger with the given logger.
// To disable logging, pass a disabled zerolog logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithPoolCapacity overwrites nodenet.DefaultPoolCapacity.
func WithPoolCapacity(n int) Option {
	return func(e *Engine) { e.cfg.capacity = n }
}

// WithMaxPayload overwrites nodenet.DefaultMaxPayload.
func WithMaxPayload(n int) Option {
	return func(e *Engine) { e.cfg.maxPayload = n }
}

// WithMaxRetries overwrites nodenet.DefaultMaxRetries.
// A request is freed once it has been transmitted this many times.
func WithMaxRetries(n uint8) Option {
	return func(e *Engine) { e.cfg.maxRetries = n }
}

// WithTickInterval overwrites nodenet.DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.cfg.tickInterval = d }
}

// WithClock replaces time.Now as the engine's time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRand replaces the source used to draw sequence numbers.
func WithRand(rnd *rand.Rand) Option {
	return func(e *Engine) {
		if rnd != nil {
			e.rnd = rnd
		}
	}
}

// WithBusIdleTimeout bounds how long a send waits for the bus to go quiet.
// Only used if the writer is an IdleWaiter.
func WithBusIdleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.cfg.busIdleTimeout = d }
}

// WithPollInterval sets how often Serve calls Tick.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.cfg.pollInterval = d }
}

// WithDuplicateWindow makes the engine remember answered requests for d.
// A retransmission of an answered request inside the window is re-acknowledged with the cached reply instead of being surfaced again,
// and a retransmission of a still-pending request is dropped.
// 0 (the default) disables the window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(e *Engine) { e.cfg.duplicateWindow = d }
}
