// Package scheduler drives dispatcher ticks on an interval or cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/okian/tutor/internal/dispatch"
	"github.com/okian/tutor/pkg/logger"
)

// ErrNoSchedule reports that neither an interval nor a cron expression was set.
var ErrNoSchedule = errors.New("no schedule configured")

// Ticker is what the scheduler runs.
type Ticker interface {
	Tick(ctx context.Context) (dispatch.Report, error)
}

// Scheduler runs Tick periodically. Overlapping runs are never started.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ticker    Ticker
	interval  time.Duration
	cron      string
	immediate bool
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval runs a tick every d.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithCron runs ticks on a five-field cron expression. It wins over WithInterval.
func WithCron(expr string) Option {
	return func(s *Scheduler) { s.cron = expr }
}

// WithImmediateStart runs the first tick on Start instead of after one period.
func WithImmediateStart(v bool) Option {
	return func(s *Scheduler) { s.immediate = v }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a scheduler for t.
func New(t Ticker, opts ...Option) *Scheduler {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		ticker:    t,
		log:       logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler.SingletonModeAll()
	if !s.immediate {
		s.scheduler.WaitForScheduleAll()
	}
	return s
}

// Start registers the tick job and starts the scheduler without blocking.
// Ticks run with a context derived from ctx and stop when Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	var err error
	switch {
	case s.cron != "":
		_, err = s.scheduler.Cron(s.cron).Do(s.run)
	case s.interval > 0:
		_, err = s.scheduler.Every(s.interval).Do(s.run)
	default:
		err = ErrNoSchedule
	}
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule dispatcher: %w", err)
	}

	s.scheduler.StartAsync()
	s.log.Info(ctx, "scheduler started",
		logger.String("cron", s.cron),
		logger.Duration("interval", s.interval))
	return nil
}

// Stop cancels a running tick, then halts future ticks. gocron waits for
// the running job, so the cancel has to come first.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}

// IsRunning reports whether the underlying scheduler is active.
func (s *Scheduler) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *Scheduler) run() {
	if _, err := s.ticker.Tick(s.ctx); err != nil {
		s.log.Error(s.ctx, "dispatch tick failed", logger.Error(err))
	}
}
