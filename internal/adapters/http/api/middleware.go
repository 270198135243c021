package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/tutor/pkg/logger"
	"github.com/okian/tutor/pkg/metrics"
)

// errorClass labels a non-2xx response for the http_errors counter.
type errorClass struct {
	kind     string
	severity string
}

// classes keyed by exact status; anything else falls back by range.
var classes = map[int]errorClass{
	http.StatusBadRequest:         {"invalid_input", "medium"},
	http.StatusNotFound:           {"not_found", "low"},
	http.StatusMethodNotAllowed:   {"method_not_allowed", "low"},
	http.StatusConflict:           {"conflict", "medium"},
	http.StatusServiceUnavailable: {"unavailable", "high"},
}

func classify(status int) errorClass {
	if c, ok := classes[status]; ok {
		return c
	}
	if status >= http.StatusInternalServerError {
		return errorClass{"server_error", "high"}
	}
	return errorClass{"client_error", "medium"}
}

// MetricsMiddleware records request count, latency and error class for endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(elapsed.Milliseconds()))

		if rec.status >= http.StatusBadRequest {
			c := classify(rec.status)
			metrics.RecordHTTPError(endpoint, r.Method, c.kind, c.severity)
		}

		logger.Get().Debug(r.Context(), "http request",
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.Int("status", rec.status),
			logger.Int("bytes", rec.written),
			logger.Duration("elapsed", elapsed))
	}
}

// statusRecorder captures the status and body size a handler produced.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
	wrote   bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wrote {
		rw.status = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wrote = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
