package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the metric family called name from registry.
func gather(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	require.Failf(t, "metric family not found", "%s", name)
	return nil
}

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestPipelineMetrics_ImplementsRecorder(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	var r Recorder = m
	r.RecordOperation(OpJob, StatusCompleted)
	r.RecordOperation(OpJob, StatusCompleted)
	r.RecordOperation(OpJob, StatusFailed)
	r.RecordDuration(OpOCR, 42.5)
	r.RecordError(OpTranscription, "network")

	ops := gather(t, registry, "mink_pipeline_operations_total")
	counts := map[string]float64{}
	for _, metric := range ops.GetMetric() {
		l := labelsOf(metric)
		counts[l["operation"]+"/"+l["status"]] = metric.GetCounter().GetValue()
	}
	assert.InDelta(t, 2.0, counts["job/completed"], 1e-9)
	assert.InDelta(t, 1.0, counts["job/failed"], 1e-9)

	dur := gather(t, registry, "mink_pipeline_operation_duration_seconds")
	require.Len(t, dur.GetMetric(), 1)
	assert.Equal(t, uint64(1), dur.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 42.5, dur.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)

	errs := gather(t, registry, "mink_pipeline_errors_total")
	require.Len(t, errs.GetMetric(), 1)
	assert.Equal(t, "network", labelsOf(errs.GetMetric()[0])["error_type"])
}

func TestPipelineMetrics_Gauges(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.SetQueueDepth(3)
	m.JobStarted()
	m.JobStarted()
	m.JobFinished()
	m.ObserveWorkerItems(OpOCR, 12)

	assert.InDelta(t, 3.0, gather(t, registry, "mink_queue_depth").GetMetric()[0].GetGauge().GetValue(), 1e-9)
	assert.InDelta(t, 1.0, gather(t, registry, "mink_jobs_in_flight").GetMetric()[0].GetGauge().GetValue(), 1e-9)
	assert.Equal(t, uint64(1), gather(t, registry, "mink_worker_events").GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestPipelineMetrics_DoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(registry)
	require.NoError(t, err)
	_, err = NewPipelineMetrics(registry)
	require.Error(t, err)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(registry)
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/job/:job_id", 404, 0.002)
	m.RecordHTTPRequestError("GET", "/job/:job_id", "not-found")
	m.RecordHTTPResponseSize("GET", "/job/:job_id", 120)
	m.RecordUpload(5 << 20)
	m.RecordAuth(false)
	m.RecordOutbound("api.anthropic.com", 0, 0.5)
	m.RecordOutbound("api.anthropic.com", 200, 1.5)

	req := gather(t, registry, "http_requests_total")
	require.Len(t, req.GetMetric(), 1)
	assert.Equal(t, map[string]string{"method": "GET", "path": "/job/:job_id", "status_code": "404"}, labelsOf(req.GetMetric()[0]))

	auth := gather(t, registry, "http_auth_operations_total")
	assert.Equal(t, "error", labelsOf(auth.GetMetric()[0])["status"])

	out := gather(t, registry, "http_outbound_requests_total")
	codes := map[string]bool{}
	for _, metric := range out.GetMetric() {
		codes[labelsOf(metric)["status_code"]] = true
	}
	assert.Equal(t, map[string]bool{"error": true, "200": true}, codes)
}

func TestNotifyMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewNotifyMetrics(registry)
	require.NoError(t, err)

	m.SetConnected(ChannelMQTT, true)
	m.IncReconnect(ChannelMQTT)
	m.ObserveDelivery(ChannelMQTT, "completed", 3*time.Millisecond, 256, nil)
	m.ObserveDelivery(ChannelShoutrrr, "failed", time.Millisecond, 40, errors.New("slack 500"))

	connected := gather(t, registry, "mink_notify_connected").GetMetric()
	require.Len(t, connected, 1)
	assert.InDelta(t, 1.0, connected[0].GetGauge().GetValue(), 1e-9)

	results := map[string]float64{}
	for _, metric := range gather(t, registry, "mink_notify_messages_total").GetMetric() {
		l := labelsOf(metric)
		results[l["channel"]+"/"+l["job_status"]+"/"+l["result"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"mqtt/completed/delivered": 1,
		"shoutrrr/failed/failed":   1,
	}, results)

	sizes := gather(t, registry, "mink_notify_message_size_bytes").GetMetric()
	require.Len(t, sizes, 1, "failed deliveries have no size")
	assert.Equal(t, "mqtt", labelsOf(sizes[0])["channel"])
	assert.Equal(t, uint64(2), sumSamples(gather(t, registry, "mink_notify_delivery_duration_seconds")))

	var unmetered *NotifyMetrics
	unmetered.SetConnected(ChannelMQTT, false)
	unmetered.ObserveDelivery(ChannelMQTT, "completed", 0, 0, nil)
}

func sumSamples(mf *dto.MetricFamily) uint64 {
	var n uint64
	for _, metric := range mf.GetMetric() {
		n += metric.GetHistogram().GetSampleCount()
	}
	return n
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()

	r := NewTestRecorder()
	assert.False(t, r.HasRecordedMetrics())

	r.RecordOperation(OpCasting, StatusSuccess)
	r.RecordDuration(OpCasting, 1.25)
	r.RecordError(OpCasting, "llm")

	assert.Equal(t, 1, r.GetOperationCount(OpCasting, StatusSuccess))
	assert.Equal(t, []float64{1.25}, r.GetDurations(OpCasting))
	assert.Equal(t, 1, r.GetErrorCount(OpCasting, "llm"))

	r.Reset()
	assert.False(t, r.HasRecordedMetrics())

	var _ Recorder = NewNoOpRecorder()
}
