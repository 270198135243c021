package service_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tutor/internal/adapters/repository"
	service "github.com/okian/tutor/internal/app"
	"github.com/okian/tutor/internal/domain/model"
	"github.com/okian/tutor/internal/domain/quiz"
	"github.com/okian/tutor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fixedGenerator struct {
	calls atomic.Int32
}

func (g *fixedGenerator) Generate(_ context.Context, label, _, _ string) (quiz.Result, error) {
	g.calls.Add(1)
	return quiz.Check(quiz.Content{
		Question: "Which best describes " + label + "?",
		Options:  []string{"A", "B", "C", "D"},
		Answer:   "B",
	}), nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, string, string) (quiz.Result, error) {
	return quiz.Result{}, errors.New("upstream down")
}

// racingStore lets one competing writer bump the entry right before the
// service's first update lands.
type racingStore struct {
	repository.Store
	raced atomic.Bool
}

func (r *racingStore) Update(ctx context.Context, id string, p model.EntryPatch) (model.MemoryEntry, error) {
	if r.raced.CompareAndSwap(false, true) {
		cur, err := r.Store.Get(ctx, id)
		if err != nil {
			return model.MemoryEntry{}, err
		}
		if _, err := r.Store.Update(ctx, id, model.LockoutPatch(&cur, cur.NextReview.Add(time.Hour))); err != nil {
			return model.MemoryEntry{}, err
		}
	}
	return r.Store.Update(ctx, id, p)
}

func fixedClock() (func() time.Time, time.Time) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, now
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["entries"], ShouldEqual, 0)
		})

		Convey("Then a manual dispatch is refused before start", func() {
			_, err := svc.Dispatch(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service with automatic ticks", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(16),
			service.WithDispatchInterval(time.Hour),
		)

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it is started and scheduled", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["scheduled"], ShouldBeTrue)
				So(stats["queueLength"], ShouldEqual, 0)
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Reset(svc.Stop)
		})
	})
}

func TestService_SubmitResponse(t *testing.T) {
	Convey("Given a student tracked on a concept with a generated question", t, func() {
		ctx := context.Background()
		clock, now := fixedClock()
		gen := &fixedGenerator{}
		svc := service.New(service.WithClock(clock), service.WithGenerator(gen))
		defer svc.Stop()

		concept, err := svc.RegisterConcept(ctx, "Photosynthesis", "how plants make sugar")
		So(err, ShouldBeNil)
		entry, err := svc.TrackConcept(ctx, "s1", concept.ID, "bio-101")
		So(err, ShouldBeNil)
		So(entry.MasteryProbability, ShouldEqual, 0.5)

		pending, err := svc.PendingQuizzes(ctx, "s1", 1)
		So(err, ShouldBeNil)
		So(pending, ShouldHaveLength, 1)
		So(pending[0].Fallback, ShouldBeFalse)
		questionID := pending[0].QuestionID

		Convey("When the student answers correctly", func() {
			res, err := svc.SubmitResponse(ctx, service.SubmitRequest{
				StudentID: "s1", QuestionID: questionID, SelectedOption: "B", LatencyMs: 4200,
			})

			Convey("Then mastery rises and the review is scheduled on the forgetting curve", func() {
				So(err, ShouldBeNil)
				So(res.Correct, ShouldBeTrue)
				So(res.CorrectAnswer, ShouldEqual, "B")
				So(*res.NewMastery, ShouldAlmostEqual, 0.836364, 1e-6)
				wantDays := -(*res.NewMastery * 10) * math.Log(0.7)
				So(res.NextReview.Sub(now).Hours()/24, ShouldAlmostEqual, wantDays, 1e-6)

				entries, err := svc.Entries(ctx, "s1")
				So(err, ShouldBeNil)
				So(entries[0].LastReview.Equal(now), ShouldBeTrue)
				So(entries[0].State, ShouldEqual, model.StateScheduled)
			})
		})

		Convey("When the student answers incorrectly", func() {
			res, err := svc.SubmitResponse(ctx, service.SubmitRequest{
				StudentID: "s1", QuestionID: questionID, SelectedOption: "A",
			})

			Convey("Then mastery falls", func() {
				So(err, ShouldBeNil)
				So(res.Correct, ShouldBeFalse)
				So(*res.NewMastery, ShouldAlmostEqual, 0.2, 1e-9)
			})
		})

		Convey("When another student with no entry answers", func() {
			res, err := svc.SubmitResponse(ctx, service.SubmitRequest{
				StudentID: "s2", QuestionID: questionID, SelectedOption: "B",
			})

			Convey("Then only correctness is reported", func() {
				So(err, ShouldBeNil)
				So(res.Correct, ShouldBeTrue)
				So(res.NewMastery, ShouldBeNil)
				So(res.NextReview, ShouldBeNil)
				So(svc.GetStats()["responses"], ShouldEqual, 1)
			})
		})

		Convey("When the question is unknown", func() {
			_, err := svc.SubmitResponse(ctx, service.SubmitRequest{StudentID: "s1", QuestionID: "nope"})

			Convey("Then it is reported as not found", func() {
				So(errors.Is(err, service.ErrQuestionNotFound), ShouldBeTrue)
			})
		})

		Convey("When required fields are missing", func() {
			_, err := svc.SubmitResponse(ctx, service.SubmitRequest{QuestionID: questionID})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_SubmitResponseRetriesOnConflict(t *testing.T) {
	Convey("Given a store where another writer lands first", t, func() {
		ctx := context.Background()
		clock, now := fixedClock()
		store := &racingStore{Store: repository.NewMemStore(repository.WithClock(clock))}
		svc := service.New(service.WithClock(clock), service.WithStore(store), service.WithGenerator(&fixedGenerator{}))
		defer svc.Stop()

		concept, err := svc.RegisterConcept(ctx, "Osmosis", "")
		So(err, ShouldBeNil)
		_, err = svc.TrackConcept(ctx, "s1", concept.ID, "")
		So(err, ShouldBeNil)
		pending, err := svc.PendingQuizzes(ctx, "s1", 0)
		So(err, ShouldBeNil)

		Convey("When the student answers", func() {
			res, err := svc.SubmitResponse(ctx, service.SubmitRequest{
				StudentID: "s1", QuestionID: pending[0].QuestionID, SelectedOption: "B",
			})

			Convey("Then the update is recomputed and wins over the lockout", func() {
				So(err, ShouldBeNil)
				So(*res.NewMastery, ShouldAlmostEqual, 0.836364, 1e-6)
				entries, _ := svc.Entries(ctx, "s1")
				So(entries[0].State, ShouldEqual, model.StateScheduled)
				So(entries[0].Version, ShouldEqual, 3)
				So(entries[0].LastReview.Equal(now), ShouldBeTrue)
			})
		})
	})
}

func TestService_TrackConcept(t *testing.T) {
	Convey("Given a registered concept", t, func() {
		ctx := context.Background()
		svc := service.New()
		defer svc.Stop()
		concept, err := svc.RegisterConcept(ctx, "Mitosis", "")
		So(err, ShouldBeNil)

		Convey("When tracking the same pair twice", func() {
			first, err1 := svc.TrackConcept(ctx, "s1", concept.ID, "")
			second, err2 := svc.TrackConcept(ctx, "s1", concept.ID, "")

			Convey("Then the existing entry is returned", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second.ID, ShouldEqual, first.ID)
			})
		})

		Convey("When tracking an unknown concept", func() {
			_, err := svc.TrackConcept(ctx, "s1", "missing", "")
			So(errors.Is(err, service.ErrConceptNotFound), ShouldBeTrue)
		})

		Convey("When registering a concept without a label", func() {
			_, err := svc.RegisterConcept(ctx, "  ", "")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_PendingQuizzes(t *testing.T) {
	Convey("Given concepts and a student with no entries", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithFallbackConcepts(2), service.WithGenerator(failingGenerator{}))
		defer svc.Stop()
		for _, label := range []string{"Atoms", "Bonds", "Ions"} {
			_, err := svc.RegisterConcept(ctx, label, "")
			So(err, ShouldBeNil)
		}

		Convey("When pending quizzes are requested", func() {
			pending, err := svc.PendingQuizzes(ctx, "fresh", 0)

			Convey("Then the student is tracked on the fallback concepts", func() {
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 2)
				entries, _ := svc.Entries(ctx, "fresh")
				So(entries, ShouldHaveLength, 2)
			})

			Convey("Then generator failures produce fallback questions", func() {
				So(err, ShouldBeNil)
				for _, p := range pending {
					So(p.Fallback, ShouldBeTrue)
					So(p.Question, ShouldEqual, "What is "+p.ConceptLabel+"?")
					So(p.Options, ShouldResemble, quiz.FallbackOptions)
					So(p.Phase, ShouldEqual, model.PhaseDue)
				}
			})

			Convey("Then the fallback question is gradable", func() {
				res, err := svc.SubmitResponse(ctx, service.SubmitRequest{
					StudentID: "fresh", QuestionID: pending[0].QuestionID, SelectedOption: "Concept",
				})
				So(err, ShouldBeNil)
				So(res.Correct, ShouldBeTrue)
			})
		})
	})
}

func TestService_Dispatch(t *testing.T) {
	Convey("Given a started service with a due entry", t, func() {
		ctx := context.Background()
		clock, now := fixedClock()
		gen := &fixedGenerator{}
		svc := service.New(
			service.WithClock(clock),
			service.WithGenerator(gen),
			service.WithWorkerCount(2),
			service.WithLockout(12*time.Hour),
		)
		defer svc.Stop()
		concept, err := svc.RegisterConcept(ctx, "Entropy", "")
		So(err, ShouldBeNil)
		_, err = svc.TrackConcept(ctx, "s1", concept.ID, "")
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a tick runs", func() {
			report, err := svc.Dispatch(ctx)

			Convey("Then the entry is locked out", func() {
				So(err, ShouldBeNil)
				So(report.Due, ShouldEqual, 1)
				So(report.Locked, ShouldEqual, 1)
				So(gen.calls.Load(), ShouldEqual, 1)

				entries, _ := svc.Entries(ctx, "s1")
				So(entries[0].State, ShouldEqual, model.StateLocked)
				So(entries[0].NextReview.Equal(now.Add(12*time.Hour)), ShouldBeTrue)
				So(entries[0].Phase(now), ShouldEqual, model.PhaseLocked)
			})

			Convey("Then a second tick finds nothing due", func() {
				again, err := svc.Dispatch(ctx)
				So(err, ShouldBeNil)
				So(again.Due, ShouldEqual, 0)
			})
		})
	})
}
