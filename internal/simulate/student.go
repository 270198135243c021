package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/okian/tutor/pkg/logger"
)

// Latency range reported for one answer, in milliseconds.
const (
	minLatencyMs  = 2_000
	latencySpanMs = 8_000
)

const simulatedCourse = "simulation"

// tally aggregates answer counters across students.
type tally struct {
	submitted atomic.Int64
	correct   atomic.Int64
	failed    atomic.Int64
	fallback  atomic.Int64
}

// student answers quizzes and remembers the correct answer of every
// question it has been graded on.
type student struct {
	id       string
	rng      *rand.Rand
	recall   float64
	known    map[string]string
	answered int
}

func newStudent(id string, seed uint64, index int, recall float64) *student {
	return &student{
		id:     id,
		rng:    rand.New(rand.NewPCG(seed, uint64(index))), //nolint:gosec // simulated choices
		recall: recall,
		known:  make(map[string]string),
	}
}

func (s *student) choose(q pendingQuiz) string {
	if ans, ok := s.known[q.Question]; ok && s.rng.Float64() < s.recall {
		return ans
	}
	if len(q.Options) == 0 {
		return ""
	}
	return q.Options[s.rng.IntN(len(q.Options))]
}

func (s *student) latency() int64 {
	return minLatencyMs + s.rng.Int64N(latencySpanMs)
}

// practice tracks the student on every concept and then answers pending
// quizzes for the configured number of rounds.
func (s *student) practice(ctx context.Context, c *httpClient, cfg *Config, concepts []concept, t *tally) error {
	log := logger.Get().Named("simulate")
	for _, cp := range concepts {
		path := "/students/" + url.PathEscape(s.id) + "/concepts"
		if err := c.post(ctx, path, trackRequest{ConceptID: cp.ID, CourseID: simulatedCourse}, http.StatusOK, nil); err != nil {
			return fmt.Errorf("track %s on %s: %w", s.id, cp.Label, err)
		}
	}

	query := url.Values{}
	query.Set("student_id", s.id)
	if cfg.PerRound > 0 {
		query.Set("limit", fmt.Sprint(cfg.PerRound))
	}
	for round := 0; round < cfg.Rounds; round++ {
		var pending pendingResponse
		if err := c.get(ctx, "/quizzes/pending?"+query.Encode(), &pending); err != nil {
			return fmt.Errorf("pending quizzes for %s: %w", s.id, err)
		}
		for _, q := range pending.Quizzes {
			if q.Fallback {
				t.fallback.Add(1)
			}
			var res submitResult
			err := c.post(ctx, "/responses", submitRequest{
				StudentID:      s.id,
				QuestionID:     q.QuestionID,
				SelectedOption: s.choose(q),
				LatencyMs:      s.latency(),
			}, http.StatusOK, &res)
			t.submitted.Add(1)
			if err != nil {
				t.failed.Add(1)
				log.Warn(ctx, "answer rejected", logger.String("student", s.id), logger.Error(err))
				continue
			}
			s.answered++
			s.known[q.Question] = res.CorrectAnswer
			if res.Correct {
				t.correct.Add(1)
			}
			if cfg.Verbose {
				fields := []logger.Field{
					logger.String("student", s.id),
					logger.String("concept", q.ConceptLabel),
					logger.Bool("correct", res.Correct),
				}
				if res.NewMastery != nil {
					fields = append(fields, logger.Float64("mastery", *res.NewMastery))
				}
				log.Info(ctx, "answered", fields...)
			}
		}
	}
	return nil
}
