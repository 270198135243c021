// Package metrics provides Prometheus metrics for the tutor service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// masteryBuckets split [0,1] into tenths.
var masteryBuckets = prometheus.LinearBuckets(0.1, 0.1, 10) //nolint:gochecknoglobals // fixed bucket layout

// latencyBuckets are in milliseconds, from a fast HTTP hit to a slow LLM call.
var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // fixed bucket layout

// Manager owns every collector registered by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Response path
	responses       *prometheus.CounterVec
	masteryObserved prometheus.Histogram
	storeConflicts  *prometheus.CounterVec

	// Dispatcher
	dispatchTicks     prometheus.Counter
	dueEntries        prometheus.Gauge
	entriesLocked     prometheus.Counter
	dispatchFailures  *prometheus.CounterVec
	dispatchSkipped   prometheus.Counter
	tickDuration      prometheus.Histogram
	queueSize         prometheus.Gauge
	workerCount       prometheus.Gauge
	quizzesGenerated  *prometheus.CounterVec
	fallbackQuizzes   prometheus.Counter
	generationLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tutor",
		subsystem:        "review",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.responses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "responses_total",
		Help: "Student responses recorded, by correctness",
	}, []string{"correct"})

	m.masteryObserved = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "mastery_probability",
		Help:    "Mastery probability written after each response",
		Buckets: masteryBuckets,
	})

	m.storeConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_conflicts_total",
		Help: "Optimistic update conflicts on memory entries, by writer",
	}, []string{"writer"})

	m.dispatchTicks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "dispatch_ticks_total",
		Help: "Dispatcher ticks executed",
	})

	m.dueEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "due_entries",
		Help: "Due entries found on the last tick",
	})

	m.entriesLocked = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "entries_locked_total",
		Help: "Entries moved into the lockout state by the dispatcher",
	})

	m.dispatchFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "dispatch_failures_total",
		Help: "Per-entry dispatcher failures, by reason",
	}, []string{"reason"})

	m.dispatchSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "dispatch_skipped_total",
		Help: "Due entries skipped because they were in flight or the queue was full",
	})

	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "tick_duration_milliseconds",
		Help:    "Wall time of one dispatcher tick",
		Buckets: m.histogramBuckets,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_size",
		Help: "Review jobs waiting in the queue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_count",
		Help: "Review workers running",
	})

	m.quizzesGenerated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "quizzes_generated_total",
		Help: "Quiz questions persisted, by difficulty",
	}, []string{"difficulty"})

	m.fallbackQuizzes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "fallback_quizzes_total",
		Help: "Quizzes served from the deterministic fallback",
	})

	m.generationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "generation_latency_milliseconds",
		Help:    "Latency of quiz generator calls",
		Buckets: m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_errors_total",
		Help: "HTTP error responses by endpoint, error type and severity",
	}, []string{"endpoint", "method", "error_type", "severity"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "memory_usage_bytes",
		Help: "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "goroutine_count",
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name:    "gc_pause_milliseconds",
		Help:    "Average GC pause time",
		Buckets: m.histogramBuckets,
	})
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordResponse counts one answer and observes the resulting mastery.
// A negative mastery means no memory entry was updated.
func RecordResponse(correct bool, mastery float64) {
	label := "false"
	if correct {
		label = "true"
	}
	globalManager.responses.WithLabelValues(label).Inc()
	if mastery >= 0 {
		globalManager.masteryObserved.Observe(mastery)
	}
}

// RecordStoreConflict counts a lost optimistic update for writer.
func RecordStoreConflict(writer string) {
	globalManager.storeConflicts.WithLabelValues(writer).Inc()
}

// RecordDispatchTick records one tick with its due count and duration.
func RecordDispatchTick(due int, durationMs float64) {
	globalManager.dispatchTicks.Inc()
	globalManager.dueEntries.Set(float64(due))
	globalManager.tickDuration.Observe(durationMs)
}

// RecordEntryLocked counts an entry bumped into lockout.
func RecordEntryLocked() {
	globalManager.entriesLocked.Inc()
}

// RecordDispatchFailure counts a per-entry failure.
func RecordDispatchFailure(reason string) {
	globalManager.dispatchFailures.WithLabelValues(reason).Inc()
}

// RecordDispatchSkipped counts a due entry that was not enqueued.
func RecordDispatchSkipped() {
	globalManager.dispatchSkipped.Inc()
}

// UpdateQueueSize sets the current review queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateWorkerCount sets the number of running review workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordQuizGenerated counts a persisted question.
func RecordQuizGenerated(difficulty string) {
	globalManager.quizzesGenerated.WithLabelValues(difficulty).Inc()
}

// RecordFallbackQuiz counts a fallback quiz.
func RecordFallbackQuiz() {
	globalManager.fallbackQuizzes.Inc()
}

// RecordGenerationLatency observes one generator call.
func RecordGenerationLatency(ms float64) {
	globalManager.generationLatency.Observe(ms)
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, method, errorType, severity string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}
