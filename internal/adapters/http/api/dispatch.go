package api

import "net/http"

// DispatchHandler triggers a dispatcher tick on demand.
type DispatchHandler struct {
	deps Dependencies
}

// NewDispatchHandler creates a new dispatch handler.
func NewDispatchHandler(deps Dependencies) *DispatchHandler {
	return &DispatchHandler{deps: deps}
}

// HandleDispatch handles POST /dispatch requests and returns the tick report.
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.dispatch"
	report, err := h.deps.Dispatch(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
