package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/okian/tutor/internal/domain/model"
)

type options struct {
	now   func() time.Time
	newID func() string
}

// Option configures a store backend.
type Option func(*options)

// WithClock overrides the time source used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides id assignment.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepareEntry fills defaults for a new entry.
func (o options) prepareEntry(e model.MemoryEntry) model.MemoryEntry {
	now := o.now()
	if e.ID == "" {
		e.ID = o.newID()
	}
	if e.State == "" {
		e.State = model.StateScheduled
	}
	if e.NextReview.IsZero() {
		e.NextReview = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	e.Version = 1
	return e
}
