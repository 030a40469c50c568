package serve

import (
	"context"
	"time"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/observability/metrics"
	"github.com/rsamf/mink/internal/worker"
)

// queueObserver feeds queue depth and wait time into m.
func queueObserver(m *metrics.PipelineMetrics) func(jobqueue.Event) {
	return func(ev jobqueue.Event) {
		m.SetQueueDepth(ev.Depth)
		if ev.Status == jobqueue.TaskRunning {
			m.RecordDuration(metrics.OpQueueWait, ev.Waited.Seconds())
		}
	}
}

// workerReportHook records per-unit outcome, duration and item count.
func workerReportHook(m *metrics.PipelineMetrics) func(worker.Report) {
	return func(r worker.Report) {
		m.RecordDuration(r.Name, r.Elapsed.Seconds())
		m.ObserveWorkerItems(r.Name, r.Items)
		m.RecordOperation(r.Name, string(r.Outcome))
		if r.Outcome != worker.OutcomeOK {
			m.RecordError(r.Name, string(r.Outcome))
		}
	}
}

// castingObserver records one LLM request per note type.
func castingObserver(m *metrics.PipelineMetrics) func(string, time.Duration, error) {
	return func(_ string, elapsed time.Duration, err error) {
		m.RecordDuration(metrics.OpCasting, elapsed.Seconds())
		if err == nil {
			m.RecordOperation(metrics.OpCasting, metrics.StatusSuccess)
			return
		}
		m.RecordOperation(metrics.OpCasting, metrics.StatusError)
		reason := string(errors.CategoryLLM)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = string(errors.CategoryTimeout)
		}
		m.RecordError(metrics.OpCasting, reason)
	}
}
