// Package repository defines the persistence interfaces for memory entries,
// concepts, questions and responses, plus in-memory and SQL backends.
package repository

import (
	"context"
	"time"

	"github.com/okian/tutor/internal/domain/model"
)

// MemoryStore holds per-(student, concept) review state.
// Every write is atomic per entry.
type MemoryStore interface {
	// Create inserts a new entry. It assigns ID, Version and timestamps when
	// unset and returns ErrDuplicate if the (student, concept) pair exists.
	Create(ctx context.Context, e model.MemoryEntry) (model.MemoryEntry, error)

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (model.MemoryEntry, error)

	// FindByStudentAndConcept returns ErrNotFound when the student is not tracked on the concept.
	FindByStudentAndConcept(ctx context.Context, studentID, conceptID string) (model.MemoryEntry, error)

	// FindByStudent returns the student's entries ordered by NextReview ascending.
	FindByStudent(ctx context.Context, studentID string) ([]model.MemoryEntry, error)

	// FindDue returns up to limit entries with NextReview <= now, earliest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.MemoryEntry, error)

	// Update applies patch if the stored Version equals patch.ExpectedVersion,
	// returning the new state. A mismatch returns ErrConflict.
	Update(ctx context.Context, id string, patch model.EntryPatch) (model.MemoryEntry, error)
}

// QuestionStore persists generated questions.
type QuestionStore interface {
	SaveQuestion(ctx context.Context, q model.Question) (model.Question, error)
	FindQuestion(ctx context.Context, id string) (model.Question, error)
}

// ResponseLog is append-only.
type ResponseLog interface {
	Append(ctx context.Context, r model.Response) (model.Response, error)
	// ListByStudent returns responses newest first.
	ListByStudent(ctx context.Context, studentID string) ([]model.Response, error)
}

// ConceptStore persists concepts.
type ConceptStore interface {
	SaveConcept(ctx context.Context, c model.Concept) (model.Concept, error)
	FindConcept(ctx context.Context, id string) (model.Concept, error)
	// ListConcepts returns up to limit concepts in creation order. A limit of
	// zero or less returns all of them.
	ListConcepts(ctx context.Context, limit int) ([]model.Concept, error)
}

// Counts summarizes store contents.
type Counts struct {
	Entries   int `json:"entries"`
	Concepts  int `json:"concepts"`
	Questions int `json:"questions"`
	Responses int `json:"responses"`
}

// Store bundles every persistence concern behind one backend.
type Store interface {
	MemoryStore
	QuestionStore
	ResponseLog
	ConceptStore

	Counts(ctx context.Context) (Counts, error)
	Close() error
}
