package api

import (
	"net/http"

	service "github.com/okian/tutor/internal/app"
)

// submitRequest mirrors the OpenAPI schema for POST /responses.
type submitRequest struct {
	StudentID      string `json:"student_id" validate:"notblank"`
	QuestionID     string `json:"question_id" validate:"notblank"`
	SelectedOption string `json:"selected_option"`
	LatencyMs      int64  `json:"latency_ms" validate:"gte=0"`
}

// ResponsesHandler records answers to quiz questions.
type ResponsesHandler struct {
	deps Dependencies
}

// NewResponsesHandler creates a new responses handler.
func NewResponsesHandler(deps Dependencies) *ResponsesHandler {
	return &ResponsesHandler{deps: deps}
}

// HandlePostResponse handles POST /responses requests.
func (h *ResponsesHandler) HandlePostResponse(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_response"
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitResponse(r.Context(), service.SubmitRequest{
		StudentID:      req.StudentID,
		QuestionID:     req.QuestionID,
		SelectedOption: req.SelectedOption,
		LatencyMs:      req.LatencyMs,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
