package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/tutor/internal/domain/model"
)

// MemStore is a mutex-guarded in-memory Store. Values are copied in and out
// so callers never share state with the store.
type MemStore struct {
	opts options

	mu        sync.RWMutex
	entries   map[string]model.MemoryEntry
	byPair    map[pairKey]string
	concepts  map[string]model.Concept
	order     []string // concept ids in creation order
	questions map[string]model.Question
	responses map[string][]model.Response // by student, append order
	nResp     int
}

type pairKey struct {
	student string
	concept string
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	return &MemStore{
		opts:      buildOptions(opts),
		entries:   make(map[string]model.MemoryEntry),
		byPair:    make(map[pairKey]string),
		concepts:  make(map[string]model.Concept),
		questions: make(map[string]model.Question),
		responses: make(map[string][]model.Response),
	}
}

func (s *MemStore) Create(_ context.Context, e model.MemoryEntry) (model.MemoryEntry, error) {
	e = s.opts.prepareEntry(e)
	key := pairKey{e.StudentID, e.ConceptID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPair[key]; exists {
		return model.MemoryEntry{}, ErrDuplicate
	}
	if _, exists := s.entries[e.ID]; exists {
		return model.MemoryEntry{}, fmt.Errorf("%w: id %s", ErrDuplicate, e.ID)
	}
	s.entries[e.ID] = cloneEntry(e)
	s.byPair[key] = e.ID
	return cloneEntry(e), nil
}

func (s *MemStore) Get(_ context.Context, id string) (model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return model.MemoryEntry{}, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemStore) FindByStudentAndConcept(_ context.Context, studentID, conceptID string) (model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{studentID, conceptID}]
	if !ok {
		return model.MemoryEntry{}, ErrNotFound
	}
	return cloneEntry(s.entries[id]), nil
}

func (s *MemStore) FindByStudent(_ context.Context, studentID string) ([]model.MemoryEntry, error) {
	s.mu.RLock()
	out := make([]model.MemoryEntry, 0)
	for _, e := range s.entries {
		if e.StudentID == studentID {
			out = append(out, cloneEntry(e))
		}
	}
	s.mu.RUnlock()
	sortByNextReview(out)
	return out, nil
}

func (s *MemStore) FindDue(_ context.Context, now time.Time, limit int) ([]model.MemoryEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	due := make([]model.MemoryEntry, 0)
	for _, e := range s.entries {
		if e.IsDue(now) {
			due = append(due, cloneEntry(e))
		}
	}
	s.mu.RUnlock()
	sortByNextReview(due)
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemStore) Update(_ context.Context, id string, patch model.EntryPatch) (model.MemoryEntry, error) {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return model.MemoryEntry{}, ErrNotFound
	}
	if e.Version != patch.ExpectedVersion {
		return model.MemoryEntry{}, fmt.Errorf("%w: entry %s at version %d, expected %d", ErrConflict, id, e.Version, patch.ExpectedVersion)
	}
	if err := patch.Apply(&e, now); err != nil {
		return model.MemoryEntry{}, err
	}
	s.entries[id] = e
	return cloneEntry(e), nil
}

func (s *MemStore) SaveQuestion(_ context.Context, q model.Question) (model.Question, error) {
	if q.ID == "" {
		q.ID = s.opts.newID()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.opts.now()
	}
	q.Options = append([]string(nil), q.Options...)

	s.mu.Lock()
	s.questions[q.ID] = q
	s.mu.Unlock()
	return cloneQuestion(q), nil
}

func (s *MemStore) FindQuestion(_ context.Context, id string) (model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return model.Question{}, ErrNotFound
	}
	return cloneQuestion(q), nil
}

func (s *MemStore) Append(_ context.Context, r model.Response) (model.Response, error) {
	if r.ID == "" {
		r.ID = s.opts.newID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.opts.now()
	}
	s.mu.Lock()
	s.responses[r.StudentID] = append(s.responses[r.StudentID], r)
	s.nResp++
	s.mu.Unlock()
	return r, nil
}

func (s *MemStore) ListByStudent(_ context.Context, studentID string) ([]model.Response, error) {
	s.mu.RLock()
	src := s.responses[studentID]
	out := make([]model.Response, len(src))
	copy(out, src)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *MemStore) SaveConcept(_ context.Context, c model.Concept) (model.Concept, error) {
	if c.ID == "" {
		c.ID = s.opts.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.concepts[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.concepts[c.ID] = c
	return c, nil
}

func (s *MemStore) FindConcept(_ context.Context, id string) (model.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[id]
	if !ok {
		return model.Concept{}, ErrNotFound
	}
	return c, nil
}

func (s *MemStore) ListConcepts(_ context.Context, limit int) ([]model.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Concept, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.concepts[id])
	}
	return out, nil
}

func (s *MemStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Entries:   len(s.entries),
		Concepts:  len(s.concepts),
		Questions: len(s.questions),
		Responses: s.nResp,
	}, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

func cloneEntry(e model.MemoryEntry) model.MemoryEntry {
	if e.LastReview != nil {
		lr := *e.LastReview
		e.LastReview = &lr
	}
	return e
}

func cloneQuestion(q model.Question) model.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

func sortByNextReview(es []model.MemoryEntry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].NextReview.Equal(es[j].NextReview) {
			return es[i].ID < es[j].ID
		}
		return es[i].NextReview.Before(es[j].NextReview)
	})
}
