package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tutor/internal/adapters/repository"
	"github.com/okian/tutor/internal/domain/model"
	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/pkg/logger"
	"github.com/okian/tutor/pkg/metrics"
)

type quizStore interface {
	repository.ConceptStore
	repository.QuestionStore
}

// QuizService turns a concept into a persisted question. Generator outages
// and malformed output fall back to a fixed question, so only storage
// failures and unknown concepts are returned as errors.
type QuizService struct {
	store   quizStore
	gen     quiz.Generator
	timeout time.Duration
	log     logger.Logger
}

// NewQuizService creates a QuizService. A nil generator always falls back.
func NewQuizService(store quizStore, gen quiz.Generator, timeout time.Duration, log logger.Logger) *QuizService {
	if gen == nil {
		gen = quiz.Unavailable{}
	}
	if log == nil {
		log = logger.Get().Named("quiz")
	}
	return &QuizService{store: store, gen: gen, timeout: timeout, log: log}
}

// GenerateForConcept generates and stores one question for conceptID.
func (q *QuizService) GenerateForConcept(ctx context.Context, conceptID, difficulty string) (model.Question, error) {
	concept, err := q.store.FindConcept(ctx, conceptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Question{}, fmt.Errorf("%w: %s", ErrConceptNotFound, conceptID)
		}
		return model.Question{}, err
	}
	return q.generate(ctx, concept, difficulty)
}

func (q *QuizService) generate(ctx context.Context, concept model.Concept, difficulty string) (model.Question, error) {
	if difficulty == "" {
		difficulty = quiz.DifficultyMedium
	}

	genCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	start := time.Now()
	result, genErr := q.gen.Generate(genCtx, concept.Label, difficulty, concept.Definition)
	metrics.RecordGenerationLatency(float64(time.Since(start).Milliseconds()))

	content, fallback := quiz.Resolve(concept.Label, result, genErr)
	if fallback {
		metrics.RecordFallbackQuiz()
		fields := []logger.Field{
			logger.String("concept_id", concept.ID),
			logger.String("label", concept.Label),
		}
		if genErr != nil {
			fields = append(fields, logger.Error(genErr))
		} else {
			fields = append(fields, logger.String("reason", result.Reason()))
		}
		q.log.Warn(ctx, "using fallback quiz", fields...)
	}

	saved, err := q.store.SaveQuestion(ctx, model.Question{
		ConceptID:  concept.ID,
		Text:       content.Question,
		Options:    content.Options,
		Answer:     content.Answer,
		Difficulty: difficulty,
		Fallback:   fallback,
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("save question for concept %s: %w", concept.ID, err)
	}
	metrics.RecordQuizGenerated(difficulty)
	return saved, nil
}
