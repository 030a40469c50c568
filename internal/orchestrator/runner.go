package orchestrator

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/extraction"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
	"github.com/rsamf/mink/internal/worker"
)

// Runner executes jobs. It implements jobqueue.Handler.
type Runner struct {
	settings    *conf.Settings
	repo        datastore.Repository
	uploads     *UploadStore
	transcriber extraction.Transcriber
	screen      extraction.ScreenReader
	log         logger.Logger
	opts        options
}

// NewRunner creates a Runner over the given extraction adapters.
func NewRunner(settings *conf.Settings, repo datastore.Repository, uploads *UploadStore, transcriber extraction.Transcriber, screen extraction.ScreenReader, log logger.Logger, opts ...Option) *Runner {
	return &Runner{
		settings:    settings,
		repo:        repo,
		uploads:     uploads,
		transcriber: transcriber,
		screen:      screen,
		log:         log,
		opts:        newOptions(log, opts),
	}
}

// Handle implements jobqueue.Handler.
func (r *Runner) Handle(ctx context.Context, jobID string) error {
	return r.Process(ctx, jobID)
}

// Process runs the whole pipeline for jobID and leaves the job completed or
// failed. Casting failures are logged and do not change the status.
func (r *Runner) Process(ctx context.Context, jobID string) (err error) {
	start := time.Now()
	log := r.log.With(logger.String("job_id", jobID))
	if t, ok := r.opts.recorder.(inFlightTracker); ok {
		t.JobStarted()
		defer t.JobFinished()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("pipeline panic: %v", rec).
				Category(errors.CategoryWorker).
				JobContext(jobID).
				Build()
			log.Error("pipeline panicked",
				logger.Error(err),
				logger.String("stack", string(debug.Stack())))
			r.fail(ctx, log, jobID, ReasonInternal)
		}
		status := metrics.StatusCompleted
		if err != nil {
			status = metrics.StatusFailed
		}
		r.opts.recorder.RecordOperation(metrics.OpJob, status)
		r.opts.recorder.RecordDuration(metrics.OpJob, time.Since(start).Seconds())
		notify(ctx, &r.opts, r.repo, r.log, jobID)
	}()

	path, err := r.uploads.Locate(jobID)
	if err != nil {
		log.Error("could not find video file", logger.Error(err))
		r.fail(ctx, log, jobID, ReasonUploadMissing)
		return err
	}

	log.Info("job started", logger.String("path", path))
	transcript, ocr, err := r.extract(ctx, jobID, path)
	if err != nil {
		reason := ReasonInterrupted
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonWorkerTimeout
		}
		log.Error("extraction did not finish", logger.Error(err), logger.String("reason", reason))
		r.fail(ctx, log, jobID, reason)
		return err
	}
	log.Info("extraction joined",
		logger.Int("transcript_events", len(transcript)),
		logger.Int("ocr_events", len(ocr)))

	persistStart := time.Now()
	if err := r.repo.CompleteJob(ctx, jobID, transcript, ocr); err != nil {
		r.opts.recorder.RecordError(metrics.OpPersist, string(errors.CategoryDatabase))
		log.Error("failed to persist events", logger.Error(err))
		r.fail(ctx, log, jobID, ReasonPersistence)
		return err
	}
	r.opts.recorder.RecordDuration(metrics.OpPersist, time.Since(persistStart).Seconds())
	log.Info("job completed", logger.Duration("elapsed", time.Since(start)))

	r.castNotes(ctx, log, jobID, transcript, ocr)
	return nil
}

// extract runs both units under the worker timeout and waits for both. A
// non-nil error means a unit was cut short by the deadline or by
// cancellation; the results are then discarded. Units that finished on their
// own are kept even if the deadline passes while joining.
func (r *Runner) extract(ctx context.Context, jobID, path string) ([]datastore.TranscriptEvent, []datastore.OnScreenEvent, error) {
	unitCtx, cancel := unitContext(worker.WithJobID(ctx, jobID), r.settings.Pipeline.WorkerTimeout)
	defer cancel()

	transcriptCh := worker.Start(r.opts.supervisor, unitCtx, metrics.OpTranscription,
		func(ctx context.Context) ([]datastore.TranscriptEvent, error) {
			return r.transcriber.Extract(ctx, path, jobID)
		})
	ocrCh := worker.Start(r.opts.supervisor, unitCtx, metrics.OpOCR,
		func(ctx context.Context) ([]datastore.OnScreenEvent, error) {
			return r.screen.Extract(ctx, path, jobID)
		})

	transcript := <-transcriptCh
	ocr := <-ocrCh

	// the job itself was cancelled, e.g. on shutdown
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.New(err).
			Category(errors.CategoryCancellation).
			JobContext(jobID).
			Build()
	}
	if transcript.CutShort() || ocr.CutShort() {
		cause := unitCtx.Err()
		if cause == nil {
			cause = errors.Join(transcript.Err, ocr.Err)
		}
		return nil, nil, errors.New(cause).
			Category(errors.CategoryWorker).
			JobContext(jobID).
			Context("worker_timeout", r.settings.Pipeline.WorkerTimeout.String()).
			Context("transcription", string(transcript.Outcome)).
			Context("ocr", string(ocr.Outcome)).
			Build()
	}
	return transcript.Items, ocr.Items, nil
}

func unitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// castNotes is best effort: successful note types are saved even when
// others fail.
func (r *Runner) castNotes(ctx context.Context, log logger.Logger, jobID string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) {
	if r.opts.caster == nil || !r.settings.Casting.Configured() {
		return
	}

	notes, err := r.opts.caster.Cast(ctx, jobID, transcript, ocr)
	if err != nil {
		log.Warn("some notes could not be cast", logger.Error(err))
	}
	if len(notes) == 0 {
		return
	}
	if err := r.repo.SaveNotes(ctx, jobID, notes); err != nil {
		r.opts.recorder.RecordError(metrics.OpCasting, string(errors.CategoryDatabase))
		log.Error("failed to save notes", logger.Error(err))
		return
	}
	log.Info("notes saved", logger.Int("notes", len(notes)))
}

// fail moves jobID to failed. It writes even when ctx has ended so that no
// job stays queued after a run.
func (r *Runner) fail(ctx context.Context, log logger.Logger, jobID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	if err := r.repo.MarkFailed(ctx, jobID, reason); err != nil {
		if errors.Is(err, datastore.ErrInvalidTransition) {
			log.Debug("job already terminal", logger.String("reason", reason))
			return
		}
		log.Error("failed to mark job failed", logger.Error(err), logger.String("reason", reason))
	}
}

// Recover handles jobs a previous process left queued. With
// pipeline.failinterrupted they are marked failed; otherwise they are
// scheduled again, and marked failed only when that is impossible.
func (r *Runner) Recover(ctx context.Context, scheduler Scheduler) (int, error) {
	ids, err := r.repo.ListQueuedJobs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, jobID := range ids {
		log := r.log.With(logger.String("job_id", jobID))
		if !r.settings.Pipeline.FailInterrupted && scheduler != nil {
			_, err := scheduler.Enqueue(jobID)
			if err == nil {
				log.Info("rescheduled interrupted job")
				continue
			}
			log.Warn("could not reschedule interrupted job", logger.Error(err))
		}
		r.fail(ctx, log, jobID, ReasonInterrupted)
		notify(ctx, &r.opts, r.repo, r.log, jobID)
	}
	r.log.Info("recovered interrupted jobs", logger.Int("count", len(ids)),
		logger.String("mode", recoverMode(r.settings.Pipeline.FailInterrupted)))
	return len(ids), nil
}

func recoverMode(failInterrupted bool) string {
	if failInterrupted {
		return "fail"
	}
	return "reschedule"
}
