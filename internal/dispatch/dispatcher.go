// Package dispatch finds memory entries that are due for review, generates
// a review quiz for each and moves them into the lockout state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tutor/internal/adapters/mq/queue"
	"github.com/okian/tutor/internal/adapters/mq/worker"
	"github.com/okian/tutor/internal/adapters/repository"
	"github.com/okian/tutor/internal/domain/dedupe"
	"github.com/okian/tutor/internal/domain/model"
	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/pkg/logger"
	"github.com/okian/tutor/pkg/metrics"
)

const (
	defaultBatchSize   = 10
	defaultLockout     = 24 * time.Hour
	defaultTickTimeout = 50 * time.Second
)

// QuizSource generates and persists one question for a concept.
type QuizSource interface {
	GenerateForConcept(ctx context.Context, conceptID, difficulty string) (model.Question, error)
}

// Report summarizes one tick.
type Report struct {
	Due        int `json:"due"`
	Locked     int `json:"locked"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
	Skipped    int `json:"skipped"`
	// Pending jobs were still running when the tick deadline passed.
	Pending int `json:"pending"`
}

// Dispatcher holds no schedule state of its own. Entries are read and
// written only through the store, whose per-entry compare-and-swap keeps
// a concurrent response from being overwritten by a lockout.
type Dispatcher struct {
	store    repository.MemoryStore
	quizzes  QuizSource
	queue    queue.Queue
	inflight dedupe.Tracker

	batchSize   int
	lockout     time.Duration
	tickTimeout time.Duration
	difficulty  string
	now         func() time.Time
	log         logger.Logger
}

var _ worker.Reviewer = (*Dispatcher)(nil)

// New creates a dispatcher that pushes review jobs onto q. Jobs are
// executed by a worker.Pool constructed with the dispatcher as Reviewer.
func New(store repository.MemoryStore, quizzes QuizSource, q queue.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		quizzes:     quizzes,
		queue:       q,
		inflight:    dedupe.NewInFlightTracker(),
		batchSize:   defaultBatchSize,
		lockout:     defaultLockout,
		tickTimeout: defaultTickTimeout,
		difficulty:  quiz.DifficultyMedium,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tick runs one dispatch pass. Per-entry failures are counted in the
// report and never abort the tick; only a failed due-entry lookup is
// returned as an error.
func (d *Dispatcher) Tick(ctx context.Context) (Report, error) {
	start := d.now()
	ctx, cancel := context.WithTimeout(ctx, d.tickTimeout)
	defer cancel()

	d.log.Debug(ctx, "checking for due reviews")
	due, err := d.store.FindDue(ctx, start, d.batchSize)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrFindDue, err)
	}

	report := Report{Due: len(due)}
	defer func() {
		metrics.RecordDispatchTick(report.Due, float64(d.now().Sub(start).Milliseconds()))
	}()
	if len(due) == 0 {
		d.log.Debug(ctx, "no due reviews")
		return report, nil
	}
	d.log.Info(ctx, "found due reviews", logger.Int("count", len(due)))

	// buffered so late finishers never block after the tick returns
	outcomes := make(chan model.ReviewOutcome, len(due))
	pending := 0
	for i := range due {
		entry := due[i]
		if !d.inflight.Acquire(ctx, entry.ID) {
			report.Skipped++
			metrics.RecordDispatchSkipped()
			continue
		}
		job := model.ReviewJob{
			Entry: entry,
			Now:   start,
			Done: func(o model.ReviewOutcome) {
				d.inflight.Release(context.Background(), entry.ID)
				outcomes <- o
			},
		}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			d.inflight.Release(ctx, entry.ID)
			report.Skipped++
			metrics.RecordDispatchSkipped()
			d.log.Warn(ctx, "review job not enqueued",
				logger.String("entry_id", entry.ID),
				logger.Error(err))
			continue
		}
		pending++
	}

	for pending > 0 {
		select {
		case o := <-outcomes:
			pending--
			switch o.Kind {
			case model.OutcomeLocked:
				report.Locked++
			case model.OutcomeSuperseded:
				report.Superseded++
			default:
				report.Failed++
			}
		case <-ctx.Done():
			report.Pending = pending
			d.log.Warn(ctx, "tick deadline reached with reviews in flight", logger.Int("pending", pending))
			return report, nil
		}
	}

	d.log.Info(ctx, "dispatch tick complete",
		logger.Int("due", report.Due),
		logger.Int("locked", report.Locked),
		logger.Int("failed", report.Failed),
		logger.Int("superseded", report.Superseded),
		logger.Int("skipped", report.Skipped))
	return report, nil
}

// Review generates a quiz for the job's concept and, only if that
// succeeds, bumps the entry into lockout. The update is conditional on the
// version the tick read, so a response recorded meanwhile wins.
func (d *Dispatcher) Review(ctx context.Context, job model.ReviewJob) model.ReviewOutcome {
	entry := job.Entry
	out := model.ReviewOutcome{EntryID: entry.ID}

	if _, err := d.quizzes.GenerateForConcept(ctx, entry.ConceptID, d.difficulty); err != nil {
		out.Kind = model.OutcomeFailed
		out.Err = fmt.Errorf("generate quiz for concept %s: %w", entry.ConceptID, err)
		return out
	}

	until := d.now().Add(d.lockout)
	if _, err := d.store.Update(ctx, entry.ID, model.LockoutPatch(&entry, until)); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			out.Kind = model.OutcomeSuperseded
			return out
		}
		out.Kind = model.OutcomeFailed
		out.Err = fmt.Errorf("lock entry %s: %w", entry.ID, err)
		return out
	}

	d.log.Info(ctx, "generated review quiz",
		logger.String("entry_id", entry.ID),
		logger.String("concept_id", entry.ConceptID),
		logger.String("student_id", entry.StudentID),
		logger.Time("locked_until", until))
	out.Kind = model.OutcomeLocked
	return out
}
