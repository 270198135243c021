// Package dedupe tracks memory entries that currently have a review in flight.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker guards against dispatching the same entry twice while a review
// job for it is still queued or running.
type Tracker interface {
	// Acquire marks id as in flight. It returns false if id is already in
	// flight or the tracker is full.
	Acquire(ctx context.Context, id string) bool

	// Release clears id so a later tick may dispatch it again.
	Release(ctx context.Context, id string)

	Size() int64
}

type inFlightTracker struct {
	mu      sync.Mutex
	active  map[string]struct{}
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInFlightTracker creates an in-memory tracker.
func NewInFlightTracker(opts ...Option) Tracker {
	d := &inFlightTracker{}
	for _, opt := range opts {
		opt(d)
	}
	d.active = make(map[string]struct{})
	return d
}

func (d *inFlightTracker) Acquire(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.active[id]; exists {
		return false
	}
	if d.maxSize > 0 && len(d.active) >= d.maxSize {
		return false
	}
	d.active[id] = struct{}{}
	d.size.Add(1)
	return true
}

func (d *inFlightTracker) Release(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.active[id]; exists {
		delete(d.active, id)
		d.size.Add(-1)
	}
}

func (d *inFlightTracker) Size() int64 {
	return d.size.Load()
}
