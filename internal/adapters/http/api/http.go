// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/tutor/internal/adapters/repository"
	service "github.com/okian/tutor/internal/app"
	"github.com/okian/tutor/internal/dispatch"
	"github.com/okian/tutor/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	SubmitResponse(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
	PendingQuizzes(ctx context.Context, studentID string, limit int) ([]service.PendingQuiz, error)
	RegisterConcept(ctx context.Context, label, definition string) (model.Concept, error)
	TrackConcept(ctx context.Context, studentID, conceptID, courseID string) (model.MemoryEntry, error)
	Entries(ctx context.Context, studentID string) ([]model.MemoryEntry, error)
	StudentStats(ctx context.Context, studentID string) (service.StudentStats, error)
	Dispatch(ctx context.Context) (dispatch.Report, error)
	Now() time.Time
}

// Server wires HTTP routes for the tutoring API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	responsesHandler *ResponsesHandler
	quizzesHandler   *QuizzesHandler
	conceptsHandler  *ConceptsHandler
	studentsHandler  *StudentsHandler
	dispatchHandler  *DispatchHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		responsesHandler: NewResponsesHandler(deps),
		quizzesHandler:   NewQuizzesHandler(deps),
		conceptsHandler:  NewConceptsHandler(deps),
		studentsHandler:  NewStudentsHandler(deps),
		dispatchHandler:  NewDispatchHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /responses", MetricsMiddleware(s.responsesHandler.HandlePostResponse, "responses"))
	mux.HandleFunc("GET /quizzes/pending", MetricsMiddleware(s.quizzesHandler.HandleGetPending, "quizzes_pending"))
	mux.HandleFunc("POST /concepts", MetricsMiddleware(s.conceptsHandler.HandlePostConcept, "concepts"))
	mux.HandleFunc("POST /students/{id}/concepts", MetricsMiddleware(s.studentsHandler.HandleTrackConcept, "student_concepts"))
	mux.HandleFunc("GET /students/{id}/entries", MetricsMiddleware(s.studentsHandler.HandleGetEntries, "student_entries"))
	mux.HandleFunc("GET /students/{id}/stats", MetricsMiddleware(s.studentsHandler.HandleGetStats, "student_stats"))
	mux.HandleFunc("POST /dispatch", MetricsMiddleware(s.dispatchHandler.HandleDispatch, "dispatch"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps a service or store error onto a status code.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrConceptNotFound),
		errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
