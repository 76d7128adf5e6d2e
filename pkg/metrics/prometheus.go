// Package metrics provides Prometheus metrics for the race plan service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Generation pipeline
	plansCreated       prometheus.Counter
	stageDuration      *prometheus.HistogramVec
	generationOutcomes *prometheus.CounterVec
	generationFailures *prometheus.CounterVec
	generationRetries  prometheus.Counter
	staleTransitions   prometheus.Counter
	compensations      *prometheus.CounterVec
	predictionTiers    *prometheus.CounterVec
	narrativeFailures  prometheus.Counter
	inflightPlans      prometheus.Gauge

	// Collaborators
	courseFetches   *prometheus.CounterVec
	weatherRequests *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "raceday",
		subsystem:        "planner",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.plansCreated = m.counter("plans_created_total", "Total number of plans accepted for generation")
	m.stageDuration = m.histogramVec("stage_duration_milliseconds", "Generation stage duration in milliseconds", "stage")
	m.generationOutcomes = m.counterVec("generation_outcomes_total", "Terminal plan outcomes", "status")
	m.generationFailures = m.counterVec("generation_failures_total", "Generation failures by error class", "class")
	m.generationRetries = m.counter("generation_retries_total", "Automatic pipeline retries after transient errors")
	m.staleTransitions = m.counter("stale_transitions_total", "Plans failed by the staleness timeout")
	m.compensations = m.counterVec("compensations_total", "Quota refund attempts by result", "result")
	m.predictionTiers = m.counterVec("prediction_tier_total", "Predictions by selected data tier", "tier")
	m.narrativeFailures = m.counter("narrative_failures_total", "Narrative collaborator failures (best effort)")
	m.inflightPlans = m.gauge("inflight_plans", "Plans currently being generated")

	m.courseFetches = m.counterVec("course_fetch_total", "Course source fetches by source and result", "source", "result")
	m.weatherRequests = m.counterVec("weather_requests_total", "Weather source requests by result", "result")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Plan store operation latency", "op")

	m.queueSize = m.gauge("queue_size", "Current number of queued generation jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued generation jobs")
	m.queueUtilization = m.gauge("queue_utilization", "Queue size divided by capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total generation jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total generation jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")

	m.workerCount = m.gauge("worker_count", "Number of generation workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one job")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// Pipeline

func RecordPlanCreated() { globalManager.plansCreated.Inc() }

func RecordStageDuration(stage string, ms float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(ms)
}

func RecordGenerationOutcome(status string) {
	globalManager.generationOutcomes.WithLabelValues(status).Inc()
}

func RecordGenerationFailure(class string) {
	globalManager.generationFailures.WithLabelValues(class).Inc()
}

func RecordGenerationRetry() { globalManager.generationRetries.Inc() }

func RecordStaleTransition() { globalManager.staleTransitions.Inc() }

func RecordCompensation(result string) {
	globalManager.compensations.WithLabelValues(result).Inc()
}

func RecordPredictionTier(tier string) {
	globalManager.predictionTiers.WithLabelValues(tier).Inc()
}

func RecordNarrativeFailure() { globalManager.narrativeFailures.Inc() }

func UpdateInflightPlans(n int) { globalManager.inflightPlans.Set(float64(n)) }

// Collaborators

func RecordCourseFetch(source, result string) {
	globalManager.courseFetches.WithLabelValues(source, result).Inc()
}

func RecordWeatherRequest(result string) {
	globalManager.weatherRequests.WithLabelValues(result).Inc()
}

func RecordStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// Queue

func UpdateQueueSize(size int)         { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }
func UpdateQueueUtilization(u float64) { globalManager.queueUtilization.Set(u) }
func RecordQueueEnqueue()              { globalManager.queueEnqueueRate.Inc() }
func RecordQueueDequeue()              { globalManager.queueDequeueRate.Inc() }
func RecordQueueEnqueueError()         { globalManager.queueEnqueueErrors.Inc() }

// Workers

func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// Errors

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }
func RecordSystemGCPauseTime(ms float64)   { globalManager.systemGCPauseTime.Observe(ms) }

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
