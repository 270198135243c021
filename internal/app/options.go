package service

import (
	"time"

	"github.com/okian/tutor/internal/adapters/repository"
	"github.com/okian/tutor/internal/domain/mastery"
	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithGenerator sets the quiz generator.
func WithGenerator(gen quiz.Generator) Option {
	return func(s *Service) {
		if gen != nil {
			s.generator = gen
		}
	}
}

// WithMasteryModel overrides the knowledge tracing parameters.
func WithMasteryModel(m mastery.Model) Option {
	return func(s *Service) { s.mastery = m }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkerCount sets the number of review workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the review queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBatchSize sets how many due entries one tick handles.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLockout sets the provisional bump applied by the dispatcher.
func WithLockout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockout = d
		}
	}
}

// WithTargetRetention sets the recall probability reviews are scheduled at.
func WithTargetRetention(r float64) Option {
	return func(s *Service) { s.targetRetention = r }
}

// WithQuizTimeout bounds each generator call.
func WithQuizTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.quizTimeout = d
		}
	}
}

// WithTickTimeout bounds how long a tick waits for its batch.
func WithTickTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickTimeout = d
		}
	}
}

// WithDispatchInterval schedules automatic ticks every d. Zero disables them.
func WithDispatchInterval(d time.Duration) Option {
	return func(s *Service) { s.dispatchInterval = d }
}

// WithDispatchCron schedules automatic ticks on a cron expression.
func WithDispatchCron(expr string) Option {
	return func(s *Service) { s.dispatchCron = expr }
}

// WithFallbackConcepts caps entries created for a student with none.
func WithFallbackConcepts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fallbackConcepts = n
		}
	}
}

// WithMasteredThreshold sets the mastery above which a concept counts as mastered.
func WithMasteredThreshold(t float64) Option {
	return func(s *Service) { s.masteredThreshold = t }
}
