package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// StudentStats is the dashboard summary for one student.
type StudentStats struct {
	ConceptsMastered int    `json:"concepts_mastered"`
	ConceptsTracked  int    `json:"concepts_tracked"`
	Streak           string `json:"streak"`
	TimeSpent        string `json:"time_spent"`
	RetentionRate    string `json:"retention_rate"`
	Responses        int    `json:"responses"`
}

// StudentStats summarizes a student's entries and response history.
func (s *Service) StudentStats(ctx context.Context, studentID string) (StudentStats, error) {
	if strings.TrimSpace(studentID) == "" {
		return StudentStats{}, fmt.Errorf("%w: student_id is required", ErrInvalidInput)
	}
	entries, err := s.store.FindByStudent(ctx, studentID)
	if err != nil {
		return StudentStats{}, err
	}
	responses, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return StudentStats{}, err
	}

	var (
		mastered int
		sum      float64
	)
	for i := range entries {
		sum += entries[i].MasteryProbability
		if entries[i].MasteryProbability > s.masteredThreshold {
			mastered++
		}
	}
	avg := 0.0
	if len(entries) > 0 {
		avg = sum / float64(len(entries))
	}

	var spent int64
	days := make([]time.Time, 0, len(responses))
	for i := range responses {
		spent += responses[i].LatencyMs
		days = append(days, responses[i].Timestamp)
	}

	return StudentStats{
		ConceptsMastered: mastered,
		ConceptsTracked:  len(entries),
		Streak:           fmt.Sprintf("%d Days", streakDays(days, s.now())),
		TimeSpent:        formatTimeSpent(time.Duration(spent) * time.Millisecond),
		RetentionRate:    fmt.Sprintf("%d%%", int(math.Round(avg*100))),
		Responses:        len(responses),
	}, nil
}

// streakDays counts consecutive UTC calendar days with activity ending today.
func streakDays(activity []time.Time, now time.Time) int {
	seen := make(map[string]struct{}, len(activity))
	for _, t := range activity {
		seen[t.UTC().Format(time.DateOnly)] = struct{}{}
	}
	streak := 0
	day := now.UTC()
	for {
		if _, ok := seen[day.Format(time.DateOnly)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

func formatTimeSpent(d time.Duration) string {
	if d > 0 && d < time.Minute {
		return "< 1m"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
