// Package orchestrator turns an uploaded meeting video into persisted
// knowledge. Service accepts uploads and schedules them; Runner executes one
// job: it runs transcription and OCR side by side in isolated units, joins
// both results, persists them and optionally casts notes.
//
// Every job that enters a Runner leaves it in a terminal status.
package orchestrator

import (
	"context"
	"time"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
	"github.com/rsamf/mink/internal/worker"
)

// Failure reasons recorded on jobs.
const (
	ReasonNoConfig      = "pipeline not configured"
	ReasonUploadMissing = "upload not found"
	ReasonWorkerTimeout = "worker timeout"
	ReasonInterrupted   = "interrupted"
	ReasonPersistence   = "persistence error"
	ReasonInternal      = "internal error"
	ReasonQueueFull     = "queue full"
)

// failWriteTimeout bounds terminal writes made after the job context ended.
const failWriteTimeout = 10 * time.Second

// Notifier is told about every job that reached a terminal status.
type Notifier interface {
	Notify(ctx context.Context, job *datastore.Job) error
}

// Scheduler accepts job ids for asynchronous processing.
type Scheduler interface {
	Enqueue(jobID string) (*jobqueue.Task, error)
}

// NoteCaster synthesizes notes from the extracted events.
type NoteCaster interface {
	Cast(ctx context.Context, jobID string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error)
}

// inFlightTracker is implemented by recorders that keep a running job gauge.
type inFlightTracker interface {
	JobStarted()
	JobFinished()
}

type options struct {
	notifier   Notifier
	recorder   metrics.Recorder
	caster     NoteCaster
	supervisor *worker.Supervisor
	now        func() time.Time
}

// Option configures a Service or a Runner.
type Option func(*options)

// WithNotifier publishes terminal job statuses to n.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithRecorder records pipeline metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithCaster enables note casting after a job completes.
func WithCaster(c NoteCaster) Option {
	return func(o *options) { o.caster = c }
}

// WithSupervisor runs extraction units on s.
func WithSupervisor(s *worker.Supervisor) Option {
	return func(o *options) { o.supervisor = s }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(log logger.Logger, opts []Option) options {
	o := options{
		recorder: metrics.NewNoOpRecorder(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.supervisor == nil {
		o.supervisor = worker.NewSupervisor(log)
	}
	return o
}

// notify looks the job up and hands it to the notifier. Failures are logged.
func notify(ctx context.Context, o *options, repo datastore.Repository, log logger.Logger, jobID string) {
	if o.notifier == nil {
		return
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	job, err := repo.GetJob(ctx, jobID)
	if err == nil {
		err = o.notifier.Notify(ctx, job)
	}
	o.recorder.RecordDuration(metrics.OpNotify, time.Since(start).Seconds())
	if err != nil {
		o.recorder.RecordOperation(metrics.OpNotify, metrics.StatusError)
		log.Warn("job status notification failed",
			logger.String("job_id", jobID),
			logger.Error(err))
		return
	}
	o.recorder.RecordOperation(metrics.OpNotify, metrics.StatusSuccess)
}
