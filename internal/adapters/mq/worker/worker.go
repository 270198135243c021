// Package worker runs review jobs pulled from the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tutor/internal/adapters/mq/queue"
	"github.com/okian/tutor/internal/domain/model"
	"github.com/okian/tutor/pkg/logger"
	"github.com/okian/tutor/pkg/metrics"
)

const (
	defaultJobTimeout     = 30 * time.Second
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Reviewer generates the quiz for one due entry and persists its lockout.
type Reviewer interface {
	Review(ctx context.Context, job model.ReviewJob) model.ReviewOutcome
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	reviewer   Reviewer
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, r Reviewer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		reviewer:   r,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// cancelling on exit makes the dequeue goroutine fail a job it still holds
	dqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobs := w.queue.Dequeue(dqCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process reviews one job under its own deadline and reports the outcome.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	outcome := w.reviewer.Review(jobCtx, job)
	if outcome.EntryID == "" {
		outcome.EntryID = job.Entry.ID
	}

	switch outcome.Kind {
	case model.OutcomeLocked:
		metrics.RecordEntryLocked()
	case model.OutcomeSuperseded:
		metrics.RecordStoreConflict("dispatcher")
		w.logger.Debug(ctx, "entry superseded before lockout", logger.String("entry_id", outcome.EntryID))
	case model.OutcomeFailed:
		reason := "review"
		if jobCtx.Err() != nil {
			reason = "timeout"
		}
		metrics.RecordDispatchFailure(reason)
		w.logger.Error(ctx, "review failed",
			logger.String("entry_id", outcome.EntryID),
			logger.String("concept_id", job.Entry.ConceptID),
			logger.Error(outcome.Err))
	}
	job.Finish(outcome)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	stopOnce sync.Once
	logger   logger.Logger
}

// NewPool creates workerCount workers sharing q and r. A count below one
// means runtime.NumCPU().
func NewPool(workerCount int, q Queue, r Reviewer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, r, workerOpts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	p.signal()
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
	metrics.UpdateWorkerCount(0)
}

// Shutdown closes the queue, waits for workers to finish their current
// job or for ctx to expire, then fails every job still queued so its
// owner is notified.
func (p *Pool) Shutdown(ctx context.Context) error {
	closed := false
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		} else {
			closed = true
		}
	}
	p.signal()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if closed {
		p.drain(shutdownCtx)
	}
	metrics.UpdateWorkerCount(0)
	return nil
}

// drain finishes the jobs left in a closed queue.
func (p *Pool) drain(ctx context.Context) {
	n := 0
	for job := range p.queue.Dequeue(ctx) {
		job.Finish(model.ReviewOutcome{EntryID: job.Entry.ID, Kind: model.OutcomeFailed, Err: ErrShutdown})
		n++
	}
	if n > 0 {
		p.logger.Warn(ctx, "failed queued reviews at shutdown", logger.Int("count", n))
	}
}

func (p *Pool) signal() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			close(w.shutdown)
		}
	})
}
