// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"time"
)

// ScheduleState distinguishes an authoritative schedule from a dispatcher lockout.
type ScheduleState string

const (
	// StateScheduled means NextReview was computed from the forgetting curve.
	StateScheduled ScheduleState = "scheduled"
	// StateLocked means a review quiz was generated and NextReview is a provisional bump.
	StateLocked ScheduleState = "locked"
)

// Phase is the externally visible position of an entry in the review cycle.
type Phase string

const (
	PhaseDue       Phase = "due"
	PhaseLocked    Phase = "locked"
	PhaseScheduled Phase = "scheduled"
)

// ErrReviewOrder reports a schedule whose next review precedes its last review.
var ErrReviewOrder = errors.New("next review precedes last review")

// MemoryEntry is the spaced-repetition state of one student on one concept.
type MemoryEntry struct {
	ID                 string        `json:"id"`
	StudentID          string        `json:"student_id"`
	ConceptID          string        `json:"concept_id"`
	CourseID           string        `json:"course_id"`
	MasteryProbability float64       `json:"mastery_probability"`
	LastReview         *time.Time    `json:"last_review,omitempty"`
	NextReview         time.Time     `json:"next_review"`
	State              ScheduleState `json:"state"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsDue reports whether NextReview has passed at now.
func (e *MemoryEntry) IsDue(now time.Time) bool {
	return !e.NextReview.After(now)
}

// Phase derives the review-cycle phase at now.
func (e *MemoryEntry) Phase(now time.Time) Phase {
	switch {
	case e.IsDue(now):
		return PhaseDue
	case e.State == StateLocked:
		return PhaseLocked
	default:
		return PhaseScheduled
	}
}

// EntryPatch is a conditional update: it applies only when the stored
// Version equals ExpectedVersion. Nil fields are left unchanged.
type EntryPatch struct {
	ExpectedVersion    int64
	MasteryProbability *float64
	LastReview         *time.Time
	NextReview         *time.Time
	State              *ScheduleState
}

// LockoutPatch moves e into the lockout state until the given time.
func LockoutPatch(e *MemoryEntry, until time.Time) EntryPatch {
	state := StateLocked
	return EntryPatch{
		ExpectedVersion: e.Version,
		NextReview:      &until,
		State:           &state,
	}
}

// SchedulePatch records an answered review and its authoritative next review.
func SchedulePatch(e *MemoryEntry, mastery float64, reviewedAt, next time.Time) EntryPatch {
	state := StateScheduled
	return EntryPatch{
		ExpectedVersion:    e.Version,
		MasteryProbability: &mastery,
		LastReview:         &reviewedAt,
		NextReview:         &next,
		State:              &state,
	}
}

// Apply copies the patch onto e, bumps Version and stamps UpdatedAt.
// It refuses patches that would place NextReview before LastReview.
func (p EntryPatch) Apply(e *MemoryEntry, now time.Time) error {
	next := *e
	if p.MasteryProbability != nil {
		next.MasteryProbability = *p.MasteryProbability
	}
	if p.LastReview != nil {
		lr := *p.LastReview
		next.LastReview = &lr
	}
	if p.NextReview != nil {
		next.NextReview = *p.NextReview
	}
	if p.State != nil {
		next.State = *p.State
	}
	if next.LastReview != nil && next.NextReview.Before(*next.LastReview) {
		return ErrReviewOrder
	}
	next.Version++
	next.UpdatedAt = now
	*e = next
	return nil
}

// Response is an immutable record of one answer.
type Response struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Concept is a unit of knowledge a student can be tracked on.
type Concept struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Definition string    `json:"definition,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Question is a persisted multiple-choice item for a concept.
type Question struct {
	ID         string    `json:"id"`
	ConceptID  string    `json:"concept_id"`
	Text       string    `json:"text"`
	Options    []string  `json:"options"`
	Answer     string    `json:"-"`
	Difficulty string    `json:"difficulty"`
	Fallback   bool      `json:"fallback"`
	CreatedAt  time.Time `json:"created_at"`
}
