package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const maxPendingLimit = 50

// QuizzesHandler serves quizzes awaiting a student's answer.
type QuizzesHandler struct {
	deps Dependencies
}

// NewQuizzesHandler creates a new quizzes handler.
func NewQuizzesHandler(deps Dependencies) *QuizzesHandler {
	return &QuizzesHandler{deps: deps}
}

// HandleGetPending handles GET /quizzes/pending?student_id=...&limit=N.
func (h *QuizzesHandler) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_pending_quizzes"
	q := r.URL.Query()
	studentID := strings.TrimSpace(q.Get("student_id"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing student_id")))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPendingLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("limit must be between 1 and 50")))
			return
		}
		limit = n
	}

	quizzes, err := h.deps.PendingQuizzes(r.Context(), studentID, limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}
