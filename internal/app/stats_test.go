package service

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStreakDays(t *testing.T) {
	now := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, -offset) }

	Convey("Streaks count consecutive days ending today", t, func() {
		So(streakDays(nil, now), ShouldEqual, 0)
		So(streakDays([]time.Time{day(0)}, now), ShouldEqual, 1)
		So(streakDays([]time.Time{day(0), day(0), day(1), day(2)}, now), ShouldEqual, 3)
		So(streakDays([]time.Time{day(0), day(2)}, now), ShouldEqual, 1)
		So(streakDays([]time.Time{day(1), day(2)}, now), ShouldEqual, 0)
	})
}

func TestFormatTimeSpent(t *testing.T) {
	Convey("Time spent is rendered compactly", t, func() {
		So(formatTimeSpent(0), ShouldEqual, "0m")
		So(formatTimeSpent(59*time.Second), ShouldEqual, "< 1m")
		So(formatTimeSpent(5*time.Minute+30*time.Second), ShouldEqual, "5m")
		So(formatTimeSpent(2*time.Hour+7*time.Minute), ShouldEqual, "2h 7m")
	})
}

func TestStudentStats(t *testing.T) {
	Convey("Given a student with answered reviews", t, func() {
		now := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
		s := New(WithClock(func() time.Time { return now }), WithMasteredThreshold(0.8))
		defer s.Stop()
		ctx := t.Context()

		a, _ := s.RegisterConcept(ctx, "A", "")
		b, _ := s.RegisterConcept(ctx, "B", "")
		_, err := s.TrackConcept(ctx, "s1", a.ID, "")
		So(err, ShouldBeNil)
		_, err = s.TrackConcept(ctx, "s1", b.ID, "")
		So(err, ShouldBeNil)
		pending, err := s.PendingQuizzes(ctx, "s1", 2)
		So(err, ShouldBeNil)
		So(pending, ShouldHaveLength, 2)

		// fallback answer is "Concept"
		_, err = s.SubmitResponse(ctx, SubmitRequest{StudentID: "s1", QuestionID: pending[0].QuestionID, SelectedOption: "Concept", LatencyMs: 90_000})
		So(err, ShouldBeNil)
		_, err = s.SubmitResponse(ctx, SubmitRequest{StudentID: "s1", QuestionID: pending[1].QuestionID, SelectedOption: "Tool", LatencyMs: 30_000})
		So(err, ShouldBeNil)

		Convey("When stats are requested", func() {
			stats, err := s.StudentStats(ctx, "s1")

			Convey("Then they summarize mastery and activity", func() {
				So(err, ShouldBeNil)
				So(stats.ConceptsTracked, ShouldEqual, 2)
				So(stats.ConceptsMastered, ShouldEqual, 1)
				So(stats.Streak, ShouldEqual, "1 Days")
				So(stats.TimeSpent, ShouldEqual, "2m")
				// (0.836364 + 0.2) / 2
				So(stats.RetentionRate, ShouldEqual, "52%")
				So(stats.Responses, ShouldEqual, 2)
			})
		})

		Convey("When the student is unknown", func() {
			stats, err := s.StudentStats(ctx, "ghost")
			So(err, ShouldBeNil)
			So(stats.Streak, ShouldEqual, "0 Days")
			So(stats.RetentionRate, ShouldEqual, "0%")
			So(stats.TimeSpent, ShouldEqual, "0m")
		})
	})
}
