package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tutor/pkg/logger"
)

// PercentageMultiplier converts ratios to percentages.
const PercentageMultiplier = 100

// Run executes a complete simulation and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting tutor simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("students", config.Students),
		logger.Int("concepts", config.Concepts),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, err
	}

	// Step 2: Register concepts
	concepts, err := registerConcepts(ctx, client, config.Concepts)
	if err != nil {
		return nil, fmt.Errorf("concept registration failed: %w", err)
	}
	stats.ConceptsRegistered = len(concepts)

	// Step 3: Practice concurrently
	students := make([]*student, config.Students)
	for i := range students {
		students[i] = newStudent("sim-"+uuid.NewString(), config.Seed, i, config.Recall)
	}
	var t tally
	if err := runStudents(ctx, client, config, students, concepts, &t); err != nil {
		return nil, err
	}
	stats.AnswersSubmitted = int(t.submitted.Load())
	stats.AnswersCorrect = int(t.correct.Load())
	stats.AnswersFailed = int(t.failed.Load())
	stats.FallbackQuizzes = int(t.fallback.Load())

	// Step 4: Verify what the service recorded
	for _, s := range students {
		st, err := verifyStudent(ctx, client, s, len(concepts))
		if err != nil {
			return nil, err
		}
		stats.StudentsVerified++
		stats.MasteredTotal += st.ConceptsMastered
	}

	// Step 5: Trigger a dispatcher tick
	if err := client.post(ctx, "/dispatch", nil, http.StatusOK, &stats.Dispatch); err != nil {
		log.Warn(ctx, "manual dispatch failed", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *httpClient) error {
	if err := c.get(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func registerConcepts(ctx context.Context, c *httpClient, n int) ([]concept, error) {
	out := make([]concept, 0, n)
	for i := 0; i < n; i++ {
		var cp concept
		req := conceptRequest{
			Label:      fmt.Sprintf("Concept %d", i+1),
			Definition: "generated by the simulator",
		}
		if err := c.post(ctx, "/concepts", req, http.StatusCreated, &cp); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// runStudents practises every student on a bounded pool of goroutines and
// returns the first error.
func runStudents(ctx context.Context, c *httpClient, config *Config, students []*student, concepts []concept, t *tally) error {
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan *student)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				if err := s.practice(ctx, c, config, concepts, t); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range students {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()

	wg.Wait()
	return firstErr
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var accuracy, answersPerSecond float64
	if stats.AnswersSubmitted > 0 {
		accuracy = float64(stats.AnswersCorrect) / float64(stats.AnswersSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		answersPerSecond = float64(stats.AnswersSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("conceptsRegistered", stats.ConceptsRegistered),
		logger.Int("answersSubmitted", stats.AnswersSubmitted),
		logger.Int("answersCorrect", stats.AnswersCorrect),
		logger.Int("answersFailed", stats.AnswersFailed),
		logger.Int("fallbackQuizzes", stats.FallbackQuizzes),
		logger.Int("studentsVerified", stats.StudentsVerified),
		logger.Int("conceptsMastered", stats.MasteredTotal),
		logger.Int("dispatchLocked", stats.Dispatch.Locked),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("accuracy", accuracy),
		logger.Float64("answersPerSecond", answersPerSecond))
}
