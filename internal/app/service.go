// Package service wires the review pipeline together and implements the
// operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/tutor/internal/adapters/mq/queue"
	workerpool "github.com/okian/tutor/internal/adapters/mq/worker"
	"github.com/okian/tutor/internal/adapters/repository"
	"github.com/okian/tutor/internal/dispatch"
	"github.com/okian/tutor/internal/domain/dedupe"
	"github.com/okian/tutor/internal/domain/forgetting"
	"github.com/okian/tutor/internal/domain/mastery"
	"github.com/okian/tutor/internal/domain/model"
	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/internal/scheduler"
	"github.com/okian/tutor/pkg/logger"
	"github.com/okian/tutor/pkg/metrics"
)

// maxUpdateAttempts bounds compare-and-swap retries on the response path.
const maxUpdateAttempts = 3

// Service implements the API dependencies for the tutoring system.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	generator  quiz.Generator
	mastery    mastery.Model
	quizzes    *QuizService
	inflight   dedupe.Tracker
	queue      *queue.InMemoryQueue
	dispatcher *dispatch.Dispatcher
	pool       *workerpool.Pool
	scheduler  *scheduler.Scheduler

	workerCount       int
	queueSize         int
	batchSize         int
	lockout           time.Duration
	targetRetention   float64
	quizTimeout       time.Duration
	tickTimeout       time.Duration
	dispatchInterval  time.Duration
	dispatchCron      string
	fallbackConcepts  int
	masteredThreshold float64

	started   bool
	startedAt time.Time
	now       func() time.Time
	logger    logger.Logger
}

// New constructs a Service. Without WithStore it uses an in-memory store;
// without WithGenerator every quiz is the fallback.
func New(opts ...Option) *Service {
	s := &Service{
		generator:         quiz.Unavailable{},
		mastery:           mastery.Default(),
		inflight:          dedupe.NewInFlightTracker(),
		workerCount:       runtime.NumCPU(),
		queueSize:         100,
		batchSize:         10,
		lockout:           24 * time.Hour,
		targetRetention:   forgetting.DefaultTargetRetention,
		quizTimeout:       30 * time.Second,
		tickTimeout:       50 * time.Second,
		fallbackConcepts:  3,
		masteredThreshold: 0.8,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemStore(repository.WithClock(s.now))
	}
	s.quizzes = NewQuizService(s.store, s.generator, s.quizTimeout, s.logger.Named("quiz"))
	return s
}

// Start builds the review queue, worker pool and dispatcher, and the
// scheduler when an interval or cron expression is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tutor service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.dispatcher = dispatch.New(s.store, s.quizzes, s.queue,
		dispatch.WithBatchSize(s.batchSize),
		dispatch.WithLockout(s.lockout),
		dispatch.WithTickTimeout(s.tickTimeout),
		dispatch.WithTracker(s.inflight),
		dispatch.WithClock(s.now),
		dispatch.WithLogger(s.logger.Named("dispatcher")),
	)
	// generation has its own timeout; the job deadline also covers persistence
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.dispatcher,
		workerpool.WithJobTimeout(s.quizTimeout+5*time.Second))
	s.pool.Start(ctx)

	if s.dispatchCron != "" || s.dispatchInterval > 0 {
		s.scheduler = scheduler.New(s.dispatcher,
			scheduler.WithCron(s.dispatchCron),
			scheduler.WithInterval(s.dispatchInterval),
			scheduler.WithLogger(s.logger.Named("scheduler")))
		if err := s.scheduler.Start(ctx); err != nil {
			_ = s.pool.Shutdown(ctx)
			return err
		}
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "tutor service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("batchSize", s.batchSize),
		logger.Duration("lockout", s.lockout),
	)
	return nil
}

// Stop halts the scheduler, drains the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if s.started {
		s.logger.Info(ctx, "stopping tutor service...")
		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.pool != nil {
			_ = s.pool.Shutdown(ctx)
		}
		s.started = false
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
	}
	s.logger.Info(ctx, "tutor service stopped")
}

// Dispatch runs one dispatcher tick immediately.
func (s *Service) Dispatch(ctx context.Context) (dispatch.Report, error) {
	s.mu.RLock()
	d := s.dispatcher
	started := s.started
	s.mu.RUnlock()
	if !started {
		return dispatch.Report{}, ErrNotStarted
	}
	return d.Tick(ctx)
}

// SubmitRequest is one answer to a question.
type SubmitRequest struct {
	StudentID      string
	QuestionID     string
	SelectedOption string
	LatencyMs      int64
}

// SubmitResult reports correctness and, when the student is tracked on the
// question's concept, the updated mastery and schedule.
type SubmitResult struct {
	Correct       bool       `json:"correct"`
	CorrectAnswer string     `json:"correct_answer"`
	NewMastery    *float64   `json:"new_mastery,omitempty"`
	NextReview    *time.Time `json:"next_review,omitempty"`
}

// SubmitResponse grades an answer, logs it and updates the student's
// memory entry for the concept. A concurrent writer on the same entry
// causes the update to be recomputed from the fresh state.
func (s *Service) SubmitResponse(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if strings.TrimSpace(req.StudentID) == "" || strings.TrimSpace(req.QuestionID) == "" {
		return SubmitResult{}, fmt.Errorf("%w: student_id and question_id are required", ErrInvalidInput)
	}
	if req.LatencyMs < 0 {
		return SubmitResult{}, fmt.Errorf("%w: latency_ms must not be negative", ErrInvalidInput)
	}

	question, err := s.store.FindQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SubmitResult{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, req.QuestionID)
		}
		return SubmitResult{}, err
	}

	correct := question.Answer == req.SelectedOption
	now := s.now()
	if _, err := s.store.Append(ctx, model.Response{
		StudentID:  req.StudentID,
		QuestionID: req.QuestionID,
		IsCorrect:  correct,
		LatencyMs:  req.LatencyMs,
		Timestamp:  now,
	}); err != nil {
		return SubmitResult{}, fmt.Errorf("log response: %w", err)
	}
	s.logger.Debug(ctx, "response recorded",
		logger.String("student_id", req.StudentID),
		logger.String("question_id", req.QuestionID),
		logger.Bool("correct", correct),
		logger.Int64("latency_ms", req.LatencyMs))
	result := SubmitResult{Correct: correct, CorrectAnswer: question.Answer}

	entry, err := s.store.FindByStudentAndConcept(ctx, req.StudentID, question.ConceptID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordResponse(correct, -1)
		return result, nil
	}
	if err != nil {
		return SubmitResult{}, err
	}

	for attempt := 1; ; attempt++ {
		newMastery := s.mastery.Update(entry.MasteryProbability, correct)
		next, err := forgetting.NextReviewTime(now, forgetting.Stability(newMastery), s.targetRetention)
		if err != nil {
			return SubmitResult{}, err
		}

		updated, err := s.store.Update(ctx, entry.ID, model.SchedulePatch(&entry, newMastery, now, next))
		if err == nil {
			metrics.RecordResponse(correct, updated.MasteryProbability)
			result.NewMastery = &updated.MasteryProbability
			result.NextReview = &updated.NextReview
			return result, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == maxUpdateAttempts {
			return SubmitResult{}, fmt.Errorf("update memory entry %s: %w", entry.ID, err)
		}

		metrics.RecordStoreConflict("response")
		s.logger.Debug(ctx, "memory entry changed, retrying",
			logger.String("entry_id", entry.ID),
			logger.Int("attempt", attempt))
		if entry, err = s.store.Get(ctx, entry.ID); err != nil {
			return SubmitResult{}, err
		}
	}
}

// TrackConcept starts tracking a student on a concept. Tracking an already
// tracked pair returns the existing entry.
func (s *Service) TrackConcept(ctx context.Context, studentID, conceptID, courseID string) (model.MemoryEntry, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(conceptID) == "" {
		return model.MemoryEntry{}, fmt.Errorf("%w: student_id and concept_id are required", ErrInvalidInput)
	}
	if _, err := s.store.FindConcept(ctx, conceptID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.MemoryEntry{}, fmt.Errorf("%w: %s", ErrConceptNotFound, conceptID)
		}
		return model.MemoryEntry{}, err
	}

	existing, err := s.store.FindByStudentAndConcept(ctx, studentID, conceptID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.MemoryEntry{}, err
	}

	entry, err := s.store.Create(ctx, model.MemoryEntry{
		StudentID:          studentID,
		ConceptID:          conceptID,
		CourseID:           courseID,
		MasteryProbability: mastery.InitialMastery,
		NextReview:         s.now(),
		State:              model.StateScheduled,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// lost a race with another tracker of the same pair
		return s.store.FindByStudentAndConcept(ctx, studentID, conceptID)
	}
	return entry, err
}

// RegisterConcept stores a new concept.
func (s *Service) RegisterConcept(ctx context.Context, label, definition string) (model.Concept, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.Concept{}, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	return s.store.SaveConcept(ctx, model.Concept{Label: label, Definition: strings.TrimSpace(definition)})
}

// Entries returns the student's memory entries ordered by next review.
func (s *Service) Entries(ctx context.Context, studentID string) ([]model.MemoryEntry, error) {
	return s.store.FindByStudent(ctx, studentID)
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// PendingQuiz is a question ready to be shown to a student.
type PendingQuiz struct {
	QuestionID   string      `json:"question_id"`
	ConceptID    string      `json:"concept_id"`
	ConceptLabel string      `json:"concept_label"`
	Question     string      `json:"question"`
	Options      []string    `json:"options"`
	Fallback     bool        `json:"fallback"`
	Phase        model.Phase `json:"phase"`
	NextReview   time.Time   `json:"next_review"`
}

// PendingQuizzes generates a quiz for each of the student's first limit
// entries by next review. A student with no entries is first tracked on up
// to the configured number of concepts so there is something to practise.
func (s *Service) PendingQuizzes(ctx context.Context, studentID string, limit int) ([]PendingQuiz, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("%w: student_id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.fallbackConcepts
	}

	entries, err := s.store.FindByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if entries, err = s.trackFallbackConcepts(ctx, studentID); err != nil {
			return nil, err
		}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	now := s.now()
	out := make([]PendingQuiz, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		concept, err := s.store.FindConcept(ctx, entry.ConceptID)
		if err != nil {
			s.logger.Warn(ctx, "skipping entry with unknown concept",
				logger.String("entry_id", entry.ID),
				logger.String("concept_id", entry.ConceptID),
				logger.Error(err))
			continue
		}
		q, err := s.quizzes.generate(ctx, concept, quiz.DifficultyMedium)
		if err != nil {
			s.logger.Error(ctx, "failed to prepare quiz",
				logger.String("concept_id", concept.ID),
				logger.Error(err))
			continue
		}
		out = append(out, PendingQuiz{
			QuestionID:   q.ID,
			ConceptID:    concept.ID,
			ConceptLabel: concept.Label,
			Question:     q.Text,
			Options:      q.Options,
			Fallback:     q.Fallback,
			Phase:        entry.Phase(now),
			NextReview:   entry.NextReview,
		})
	}
	return out, nil
}

func (s *Service) trackFallbackConcepts(ctx context.Context, studentID string) ([]model.MemoryEntry, error) {
	concepts, err := s.store.ListConcepts(ctx, s.fallbackConcepts)
	if err != nil {
		return nil, err
	}
	entries := make([]model.MemoryEntry, 0, len(concepts))
	for _, c := range concepts {
		e, err := s.TrackConcept(ctx, studentID, c.ID, "")
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"batchSize":   s.batchSize,
		"inFlight":    s.inflight.Size(),
	}
	if counts, err := s.store.Counts(ctx); err == nil {
		stats["entries"] = counts.Entries
		stats["concepts"] = counts.Concepts
		stats["questions"] = counts.Questions
		stats["responses"] = counts.Responses
	} else {
		s.logger.Warn(ctx, "failed to count store records", logger.Error(err))
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		stats["scheduled"] = s.scheduler != nil
	}
	return stats
}
