package dispatch

import (
	"time"

	"github.com/okian/tutor/internal/domain/dedupe"
	"github.com/okian/tutor/pkg/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBatchSize caps how many due entries one tick handles.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithLockout sets how far a dispatched entry's next review is bumped.
func WithLockout(l time.Duration) Option {
	return func(d *Dispatcher) {
		if l > 0 {
			d.lockout = l
		}
	}
}

// WithTickTimeout bounds how long Tick waits for its jobs.
func WithTickTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.tickTimeout = t
		}
	}
}

// WithDifficulty sets the difficulty requested for review quizzes.
func WithDifficulty(level string) Option {
	return func(d *Dispatcher) {
		if level != "" {
			d.difficulty = level
		}
	}
}

// WithTracker replaces the in-flight tracker.
func WithTracker(t dedupe.Tracker) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.inflight = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}
