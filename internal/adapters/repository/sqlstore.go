package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/okian/tutor/internal/domain/model"
)

// SQLStore is a Store over sqlx. Queries are written with '?' placeholders
// and rebound for the driver. Timestamps are stored as unix milliseconds.
type SQLStore struct {
	db   *sqlx.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		definition TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		course_id TEXT NOT NULL DEFAULT '',
		mastery DOUBLE PRECISION NOT NULL,
		last_review BIGINT,
		next_review BIGINT NOT NULL,
		state TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (student_id, concept_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_entries_next_review ON memory_entries (next_review)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		answer TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		fallback BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		latency_ms BIGINT NOT NULL,
		ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_student ON responses (student_id, ts)`,
}

// OpenSQL connects with the given database/sql driver name ("sqlite3" or
// "postgres") and creates the schema.
func OpenSQL(ctx context.Context, driverName, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	if driverName == "sqlite3" {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	s := &SQLStore{db: db, opts: buildOptions(opts)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing connection and creates the schema.
func NewSQLStore(ctx context.Context, db *sqlx.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{db: db, opts: buildOptions(opts)}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type entryRow struct {
	ID         string        `db:"id"`
	StudentID  string        `db:"student_id"`
	ConceptID  string        `db:"concept_id"`
	CourseID   string        `db:"course_id"`
	Mastery    float64       `db:"mastery"`
	LastReview sql.NullInt64 `db:"last_review"`
	NextReview int64         `db:"next_review"`
	State      string        `db:"state"`
	Version    int64         `db:"version"`
	CreatedAt  int64         `db:"created_at"`
	UpdatedAt  int64         `db:"updated_at"`
}

const entryColumns = `id, student_id, concept_id, course_id, mastery, last_review, next_review, state, version, created_at, updated_at`

func (r entryRow) toModel() model.MemoryEntry {
	e := model.MemoryEntry{
		ID:                 r.ID,
		StudentID:          r.StudentID,
		ConceptID:          r.ConceptID,
		CourseID:           r.CourseID,
		MasteryProbability: r.Mastery,
		NextReview:         fromMillis(r.NextReview),
		State:              model.ScheduleState(r.State),
		Version:            r.Version,
		CreatedAt:          fromMillis(r.CreatedAt),
		UpdatedAt:          fromMillis(r.UpdatedAt),
	}
	if r.LastReview.Valid {
		lr := fromMillis(r.LastReview.Int64)
		e.LastReview = &lr
	}
	return e
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func truncate(t time.Time) time.Time { return fromMillis(t.UnixMilli()) }

func (s *SQLStore) Create(ctx context.Context, e model.MemoryEntry) (model.MemoryEntry, error) {
	e = s.opts.prepareEntry(e)
	q := s.db.Rebind(`INSERT INTO memory_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		e.ID, e.StudentID, e.ConceptID, e.CourseID, e.MasteryProbability,
		nullMillis(e.LastReview), e.NextReview.UnixMilli(), string(e.State), e.Version,
		e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return model.MemoryEntry{}, ErrDuplicate
		}
		return model.MemoryEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	return normalizeEntry(e), nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (model.MemoryEntry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+entryColumns+` FROM memory_entries WHERE id = ?`), id)
	if err != nil {
		return model.MemoryEntry{}, notFound(err, "get entry")
	}
	return row.toModel(), nil
}

func (s *SQLStore) FindByStudentAndConcept(ctx context.Context, studentID, conceptID string) (model.MemoryEntry, error) {
	var row entryRow
	q := s.db.Rebind(`SELECT ` + entryColumns + ` FROM memory_entries WHERE student_id = ? AND concept_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, studentID, conceptID); err != nil {
		return model.MemoryEntry{}, notFound(err, "find entry")
	}
	return row.toModel(), nil
}

func (s *SQLStore) FindByStudent(ctx context.Context, studentID string) ([]model.MemoryEntry, error) {
	var rows []entryRow
	q := s.db.Rebind(`SELECT ` + entryColumns + ` FROM memory_entries WHERE student_id = ? ORDER BY next_review, id`)
	if err := s.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entriesFromRows(rows), nil
}

func (s *SQLStore) FindDue(ctx context.Context, now time.Time, limit int) ([]model.MemoryEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var rows []entryRow
	q := s.db.Rebind(`SELECT ` + entryColumns + ` FROM memory_entries WHERE next_review <= ? ORDER BY next_review, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, now.UnixMilli(), limit); err != nil {
		return nil, fmt.Errorf("find due: %w", err)
	}
	return entriesFromRows(rows), nil
}

func (s *SQLStore) Update(ctx context.Context, id string, patch model.EntryPatch) (model.MemoryEntry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.MemoryEntry{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row entryRow
	if err := tx.GetContext(ctx, &row, s.db.Rebind(`SELECT `+entryColumns+` FROM memory_entries WHERE id = ?`), id); err != nil {
		return model.MemoryEntry{}, notFound(err, "load entry")
	}
	e := row.toModel()
	if e.Version != patch.ExpectedVersion {
		return model.MemoryEntry{}, fmt.Errorf("%w: entry %s at version %d, expected %d", ErrConflict, id, e.Version, patch.ExpectedVersion)
	}
	if err := patch.Apply(&e, s.opts.now()); err != nil {
		return model.MemoryEntry{}, err
	}

	q := s.db.Rebind(`UPDATE memory_entries
		SET mastery = ?, last_review = ?, next_review = ?, state = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`)
	res, err := tx.ExecContext(ctx, q,
		e.MasteryProbability, nullMillis(e.LastReview), e.NextReview.UnixMilli(), string(e.State),
		e.Version, e.UpdatedAt.UnixMilli(), id, patch.ExpectedVersion)
	if err != nil {
		return model.MemoryEntry{}, fmt.Errorf("update entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.MemoryEntry{}, fmt.Errorf("%w: entry %s", ErrConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return model.MemoryEntry{}, fmt.Errorf("commit: %w", err)
	}
	return normalizeEntry(e), nil
}

type questionRow struct {
	ID         string `db:"id"`
	ConceptID  string `db:"concept_id"`
	Text       string `db:"text"`
	Options    string `db:"options"`
	Answer     string `db:"answer"`
	Difficulty string `db:"difficulty"`
	Fallback   bool   `db:"fallback"`
	CreatedAt  int64  `db:"created_at"`
}

func (s *SQLStore) SaveQuestion(ctx context.Context, q model.Question) (model.Question, error) {
	if q.ID == "" {
		q.ID = s.opts.newID()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.opts.now()
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return model.Question{}, fmt.Errorf("encode options: %w", err)
	}
	stmt := s.db.Rebind(`INSERT INTO questions (id, concept_id, text, options, answer, difficulty, fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, stmt, q.ID, q.ConceptID, q.Text, string(opts), q.Answer, q.Difficulty, q.Fallback, q.CreatedAt.UnixMilli()); err != nil {
		return model.Question{}, fmt.Errorf("insert question: %w", err)
	}
	q.CreatedAt = truncate(q.CreatedAt)
	q.Options = append([]string(nil), q.Options...)
	return q, nil
}

func (s *SQLStore) FindQuestion(ctx context.Context, id string) (model.Question, error) {
	var row questionRow
	q := s.db.Rebind(`SELECT id, concept_id, text, options, answer, difficulty, fallback, created_at FROM questions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		return model.Question{}, notFound(err, "find question")
	}
	var opts []string
	if err := json.Unmarshal([]byte(row.Options), &opts); err != nil {
		return model.Question{}, fmt.Errorf("decode options of question %s: %w", id, err)
	}
	return model.Question{
		ID:         row.ID,
		ConceptID:  row.ConceptID,
		Text:       row.Text,
		Options:    opts,
		Answer:     row.Answer,
		Difficulty: row.Difficulty,
		Fallback:   row.Fallback,
		CreatedAt:  fromMillis(row.CreatedAt),
	}, nil
}

type responseRow struct {
	ID         string `db:"id"`
	StudentID  string `db:"student_id"`
	QuestionID string `db:"question_id"`
	IsCorrect  bool   `db:"is_correct"`
	LatencyMs  int64  `db:"latency_ms"`
	Timestamp  int64  `db:"ts"`
}

func (s *SQLStore) Append(ctx context.Context, r model.Response) (model.Response, error) {
	if r.ID == "" {
		r.ID = s.opts.newID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.opts.now()
	}
	q := s.db.Rebind(`INSERT INTO responses (id, student_id, question_id, is_correct, latency_ms, ts) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.StudentID, r.QuestionID, r.IsCorrect, r.LatencyMs, r.Timestamp.UnixMilli()); err != nil {
		return model.Response{}, fmt.Errorf("insert response: %w", err)
	}
	r.Timestamp = truncate(r.Timestamp)
	return r, nil
}

func (s *SQLStore) ListByStudent(ctx context.Context, studentID string) ([]model.Response, error) {
	var rows []responseRow
	q := s.db.Rebind(`SELECT id, student_id, question_id, is_correct, latency_ms, ts FROM responses WHERE student_id = ? ORDER BY ts DESC`)
	if err := s.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]model.Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Response{
			ID:         r.ID,
			StudentID:  r.StudentID,
			QuestionID: r.QuestionID,
			IsCorrect:  r.IsCorrect,
			LatencyMs:  r.LatencyMs,
			Timestamp:  fromMillis(r.Timestamp),
		})
	}
	return out, nil
}

type conceptRow struct {
	ID         string `db:"id"`
	Label      string `db:"label"`
	Definition string `db:"definition"`
	CreatedAt  int64  `db:"created_at"`
}

func (r conceptRow) toModel() model.Concept {
	return model.Concept{ID: r.ID, Label: r.Label, Definition: r.Definition, CreatedAt: fromMillis(r.CreatedAt)}
}

func (s *SQLStore) SaveConcept(ctx context.Context, c model.Concept) (model.Concept, error) {
	if c.ID == "" {
		c.ID = s.opts.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.now()
	}
	q := s.db.Rebind(`INSERT INTO concepts (id, label, definition, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET label = excluded.label, definition = excluded.definition`)
	if _, err := s.db.ExecContext(ctx, q, c.ID, c.Label, c.Definition, c.CreatedAt.UnixMilli()); err != nil {
		return model.Concept{}, fmt.Errorf("save concept: %w", err)
	}
	c.CreatedAt = truncate(c.CreatedAt)
	return c, nil
}

func (s *SQLStore) FindConcept(ctx context.Context, id string) (model.Concept, error) {
	var row conceptRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, label, definition, created_at FROM concepts WHERE id = ?`), id); err != nil {
		return model.Concept{}, notFound(err, "find concept")
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListConcepts(ctx context.Context, limit int) ([]model.Concept, error) {
	var rows []conceptRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, label, definition, created_at FROM concepts ORDER BY created_at, id LIMIT ?`), limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, label, definition, created_at FROM concepts ORDER BY created_at, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	out := make([]model.Concept, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, t := range []struct {
		table string
		dst   *int
	}{
		{"memory_entries", &c.Entries},
		{"concepts", &c.Concepts},
		{"questions", &c.Questions},
		{"responses", &c.Responses},
	} {
		if err := s.db.GetContext(ctx, t.dst, `SELECT COUNT(*) FROM `+t.table); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func entriesFromRows(rows []entryRow) []model.MemoryEntry {
	out := make([]model.MemoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// normalizeEntry rounds timestamps to what a read-back returns.
func normalizeEntry(e model.MemoryEntry) model.MemoryEntry {
	e.NextReview = truncate(e.NextReview)
	e.CreatedAt = truncate(e.CreatedAt)
	e.UpdatedAt = truncate(e.UpdatedAt)
	if e.LastReview != nil {
		lr := truncate(*e.LastReview)
		e.LastReview = &lr
	}
	return e
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
