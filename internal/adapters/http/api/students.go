package api

import (
	"net/http"

	"github.com/okian/tutor/internal/domain/model"
)

type trackRequest struct {
	ConceptID string `json:"concept_id" validate:"notblank"`
	CourseID  string `json:"course_id"`
}

// entryView adds the derived review phase to a memory entry.
type entryView struct {
	model.MemoryEntry
	Phase model.Phase `json:"phase"`
}

// StudentsHandler serves per-student resources.
type StudentsHandler struct {
	deps Dependencies
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(deps Dependencies) *StudentsHandler {
	return &StudentsHandler{deps: deps}
}

// HandleTrackConcept handles POST /students/{id}/concepts requests.
func (h *StudentsHandler) HandleTrackConcept(w http.ResponseWriter, r *http.Request) {
	const op = "api.track_concept"
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	entry, err := h.deps.TrackConcept(r.Context(), r.PathValue("id"), req.ConceptID, req.CourseID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView{MemoryEntry: entry, Phase: entry.Phase(h.deps.Now())})
}

// HandleGetEntries handles GET /students/{id}/entries requests.
func (h *StudentsHandler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entries"
	entries, err := h.deps.Entries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	now := h.deps.Now()
	views := make([]entryView, 0, len(entries))
	for i := range entries {
		views = append(views, entryView{MemoryEntry: entries[i], Phase: entries[i].Phase(now)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

// HandleGetStats handles GET /students/{id}/stats requests.
func (h *StudentsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_student_stats"
	stats, err := h.deps.StudentStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
