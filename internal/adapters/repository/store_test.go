package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tutor/internal/adapters/repository"
	"github.com/okian/tutor/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// stepClock advances one second per call.
func stepClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
}

type backend struct {
	name string
	open func(t *testing.T) repository.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) repository.Store {
			return repository.NewMemStore(repository.WithClock(stepClock()))
		}},
		{"sqlite", func(t *testing.T) repository.Store {
			dsn := filepath.Join(t.TempDir(), "tutor.db")
			s, err := repository.Open(context.Background(), repository.DriverSQLite, dsn, repository.WithClock(stepClock()))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		Convey("Given a "+b.name+" store", t, func() {
			s := b.open(t)

			Convey("When an entry is created", func() {
				e, err := s.Create(ctx, model.MemoryEntry{StudentID: "s1", ConceptID: "c1", CourseID: "k1", MasteryProbability: 0.5, NextReview: base})

				Convey("Then it gets an id, version 1 and the scheduled state", func() {
					So(err, ShouldBeNil)
					So(e.ID, ShouldNotBeEmpty)
					So(e.Version, ShouldEqual, 1)
					So(e.State, ShouldEqual, model.StateScheduled)
					So(e.LastReview, ShouldBeNil)

					got, err := s.Get(ctx, e.ID)
					So(err, ShouldBeNil)
					So(got.StudentID, ShouldEqual, "s1")
					So(got.CourseID, ShouldEqual, "k1")
					So(got.MasteryProbability, ShouldEqual, 0.5)
					So(got.NextReview.Equal(base), ShouldBeTrue)
				})

				Convey("Then a second entry for the same pair is rejected", func() {
					_, err := s.Create(ctx, model.MemoryEntry{StudentID: "s1", ConceptID: "c1", MasteryProbability: 0.3})
					So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
				})

				Convey("Then it is found by student and concept", func() {
					got, err := s.FindByStudentAndConcept(ctx, "s1", "c1")
					So(err, ShouldBeNil)
					So(got.ID, ShouldEqual, e.ID)
				})

				Convey("And updated with the current version", func() {
					until := base.Add(24 * time.Hour)
					updated, err := s.Update(ctx, e.ID, model.LockoutPatch(&e, until))

					Convey("Then the version is bumped and the lockout stored", func() {
						So(err, ShouldBeNil)
						So(updated.Version, ShouldEqual, 2)
						So(updated.State, ShouldEqual, model.StateLocked)

						got, _ := s.Get(ctx, e.ID)
						So(got.Version, ShouldEqual, 2)
						So(got.NextReview.Equal(until), ShouldBeTrue)
						So(got.State, ShouldEqual, model.StateLocked)
					})

					Convey("Then a stale writer gets a conflict and changes nothing", func() {
						_, err := s.Update(ctx, e.ID, model.SchedulePatch(&e, 0.9, base, base.Add(time.Hour)))
						So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

						got, _ := s.Get(ctx, e.ID)
						So(got.MasteryProbability, ShouldEqual, 0.5)
						So(got.State, ShouldEqual, model.StateLocked)
					})
				})

				Convey("And a schedule patch with a last review is applied", func() {
					reviewed := base.Add(2 * time.Hour)
					next := base.Add(72 * time.Hour)
					updated, err := s.Update(ctx, e.ID, model.SchedulePatch(&e, 0.84, reviewed, next))

					Convey("Then the last review round-trips", func() {
						So(err, ShouldBeNil)
						got, _ := s.Get(ctx, e.ID)
						So(got.LastReview, ShouldNotBeNil)
						So(got.LastReview.Equal(reviewed), ShouldBeTrue)
						So(got.MasteryProbability, ShouldAlmostEqual, 0.84, 1e-12)
						So(updated.NextReview.Equal(next), ShouldBeTrue)
					})
				})
			})

			Convey("When reading unknown records", func() {
				_, err1 := s.Get(ctx, "missing")
				_, err2 := s.FindByStudentAndConcept(ctx, "s1", "missing")
				_, err3 := s.Update(ctx, "missing", model.EntryPatch{})
				_, err4 := s.FindQuestion(ctx, "missing")
				_, err5 := s.FindConcept(ctx, "missing")

				Convey("Then each reports not found", func() {
					for _, err := range []error{err1, err2, err3, err4, err5} {
						So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
					}
				})
			})

			Convey("When entries have mixed review times", func() {
				for i, offset := range []time.Duration{3 * time.Hour, -2 * time.Hour, -5 * time.Hour, time.Hour, -time.Hour} {
					_, err := s.Create(ctx, model.MemoryEntry{
						StudentID:  fmt.Sprintf("s%d", i%2),
						ConceptID:  fmt.Sprintf("c%d", i),
						NextReview: base.Add(offset),
					})
					So(err, ShouldBeNil)
				}

				Convey("Then FindDue returns only due entries, earliest first, capped by limit", func() {
					due, err := s.FindDue(ctx, base, 10)
					So(err, ShouldBeNil)
					So(due, ShouldHaveLength, 3)
					So(due[0].ConceptID, ShouldEqual, "c2")
					So(due[1].ConceptID, ShouldEqual, "c1")
					So(due[2].ConceptID, ShouldEqual, "c4")

					capped, err := s.FindDue(ctx, base, 2)
					So(err, ShouldBeNil)
					So(capped, ShouldHaveLength, 2)
				})

				Convey("Then a non-positive limit is rejected", func() {
					_, err := s.FindDue(ctx, base, 0)
					So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
				})

				Convey("Then FindByStudent orders by next review", func() {
					es, err := s.FindByStudent(ctx, "s0")
					So(err, ShouldBeNil)
					So(es, ShouldHaveLength, 3)
					So(es[0].ConceptID, ShouldEqual, "c2")
					So(es[1].ConceptID, ShouldEqual, "c4")
					So(es[2].ConceptID, ShouldEqual, "c0")
				})

				Convey("Then counts reflect them", func() {
					c, err := s.Counts(ctx)
					So(err, ShouldBeNil)
					So(c.Entries, ShouldEqual, 5)
				})
			})

			Convey("When questions are saved", func() {
				q, err := s.SaveQuestion(ctx, model.Question{ConceptID: "c1", Text: "What is X?", Options: []string{"a", "b", "c"}, Answer: "b", Difficulty: "medium", Fallback: true})

				Convey("Then they are found with options intact", func() {
					So(err, ShouldBeNil)
					So(q.ID, ShouldNotBeEmpty)
					got, err := s.FindQuestion(ctx, q.ID)
					So(err, ShouldBeNil)
					So(got.Options, ShouldResemble, []string{"a", "b", "c"})
					So(got.Answer, ShouldEqual, "b")
					So(got.Fallback, ShouldBeTrue)
				})
			})

			Convey("When responses are appended", func() {
				for i := 0; i < 3; i++ {
					_, err := s.Append(ctx, model.Response{StudentID: "s1", QuestionID: fmt.Sprintf("q%d", i), IsCorrect: i%2 == 0, LatencyMs: int64(1000 * (i + 1))})
					So(err, ShouldBeNil)
				}
				_, _ = s.Append(ctx, model.Response{StudentID: "s2", QuestionID: "q9"})

				Convey("Then the student's log is newest first", func() {
					rs, err := s.ListByStudent(ctx, "s1")
					So(err, ShouldBeNil)
					So(rs, ShouldHaveLength, 3)
					So(rs[0].QuestionID, ShouldEqual, "q2")
					So(rs[0].IsCorrect, ShouldBeTrue)
					So(rs[1].IsCorrect, ShouldBeFalse)
					So(rs[2].LatencyMs, ShouldEqual, 1000)
				})
			})

			Convey("When concepts are saved", func() {
				for _, label := range []string{"Entropy", "Enthalpy", "Gibbs"} {
					_, err := s.SaveConcept(ctx, model.Concept{Label: label})
					So(err, ShouldBeNil)
				}

				Convey("Then they are listed in creation order and limited", func() {
					all, err := s.ListConcepts(ctx, 0)
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 3)
					So(all[0].Label, ShouldEqual, "Entropy")
					So(all[2].Label, ShouldEqual, "Gibbs")

					two, err := s.ListConcepts(ctx, 2)
					So(err, ShouldBeNil)
					So(two, ShouldHaveLength, 2)

					got, err := s.FindConcept(ctx, all[1].ID)
					So(err, ShouldBeNil)
					So(got.Label, ShouldEqual, "Enthalpy")
				})
			})
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		Convey("Given racing writers on one "+b.name+" entry", t, func() {
			s := b.open(t)
			e, err := s.Create(ctx, model.MemoryEntry{StudentID: "s1", ConceptID: "c1", NextReview: base})
			So(err, ShouldBeNil)

			var wins, conflicts atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, e.ID, model.LockoutPatch(&e, base.Add(time.Hour)))
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, repository.ErrConflict):
						conflicts.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one writer wins", func() {
				So(wins.Load(), ShouldEqual, 1)
				So(conflicts.Load(), ShouldEqual, 7)
				got, _ := s.Get(ctx, e.ID)
				So(got.Version, ShouldEqual, 2)
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given store drivers", t, func() {
		Convey("When the driver is memory", func() {
			s, err := repository.Open(context.Background(), repository.DriverMemory, "")
			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
		})

		Convey("When the driver is unknown", func() {
			_, err := repository.Open(context.Background(), "mongo", "")
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}
