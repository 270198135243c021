package api

import (
	"net/http"
)

type conceptRequest struct {
	Label      string `json:"label" validate:"notblank,max=200"`
	Definition string `json:"definition"`
}

// ConceptsHandler registers concepts.
type ConceptsHandler struct {
	deps Dependencies
}

// NewConceptsHandler creates a new concepts handler.
func NewConceptsHandler(deps Dependencies) *ConceptsHandler {
	return &ConceptsHandler{deps: deps}
}

// HandlePostConcept handles POST /concepts requests.
func (h *ConceptsHandler) HandlePostConcept(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_concept"
	var req conceptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	concept, err := h.deps.RegisterConcept(r.Context(), req.Label, req.Definition)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, concept)
}
