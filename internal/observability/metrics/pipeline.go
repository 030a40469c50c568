package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for job execution. It
// implements Recorder, so the orchestrator, the worker supervisor and the
// caster all report through the same three families.
type PipelineMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	workerItems       *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
	jobsInFlight      prometheus.Gauge
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mink_pipeline_operations_total",
			Help: "Total number of pipeline operations by outcome",
		},
		[]string{"operation", "status"}, // operation: job, transcription, ocr, casting; status: completed, failed, ok, cancelled
	)

	// Extraction runs for minutes, so buckets span 100ms to ~55min.
	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mink_pipeline_operation_duration_seconds",
			Help:    "Time taken by pipeline operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mink_pipeline_errors_total",
			Help: "Total number of pipeline errors by category",
		},
		[]string{"operation", "error_type"},
	)

	m.workerItems = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mink_worker_events",
			Help:    "Number of events produced per worker unit",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount12),
		},
		[]string{"unit"},
	)

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mink_queue_depth",
		Help: "Jobs waiting for a pipeline worker",
	})

	m.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mink_jobs_in_flight",
		Help: "Jobs currently being processed",
	})
}

func (m *PipelineMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.workerItems,
		m.queueDepth,
		m.jobsInFlight,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// ObserveWorkerItems records how many events a unit delivered.
func (m *PipelineMetrics) ObserveWorkerItems(unit string, items int) {
	m.workerItems.WithLabelValues(unit).Observe(float64(items))
}

// SetQueueDepth sets the number of pending jobs.
func (m *PipelineMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// JobStarted increments the in-flight gauge.
func (m *PipelineMetrics) JobStarted() {
	m.jobsInFlight.Inc()
}

// JobFinished decrements the in-flight gauge.
func (m *PipelineMetrics) JobFinished() {
	m.jobsInFlight.Dec()
}
