package orchestrator

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
)

// Service accepts uploads. It never blocks on extraction.
type Service struct {
	settings  *conf.Settings
	repo      datastore.Repository
	uploads   *UploadStore
	scheduler Scheduler
	log       logger.Logger
	opts      options
}

// NewService creates a Service. uploads may be nil when the pipeline is not
// configured; every upload is then recorded as a failed job.
func NewService(settings *conf.Settings, repo datastore.Repository, uploads *UploadStore, scheduler Scheduler, log logger.Logger, opts ...Option) *Service {
	return &Service{
		settings:  settings,
		repo:      repo,
		uploads:   uploads,
		scheduler: scheduler,
		log:       log,
		opts:      newOptions(log, opts),
	}
}

// Ingest stores the upload, records a Meeting and a queued Job and schedules
// the job. The returned job mirrors the stored row.
//
// Without a usable pipeline the job is stored as failed and nothing is
// scheduled. If the queue rejects the job it is marked failed and the
// returned error wraps jobqueue.ErrQueueFull.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (*datastore.Job, error) {
	jobID := uuid.NewString()
	name := SafeName(filename)
	log := s.log.With(logger.String("job_id", jobID))
	log.Info("upload received", logger.String("filename", name))

	if err := s.ready(); err != nil {
		log.Error("pipeline not configured, recording failed job", logger.Error(err))
		job, cerr := s.repo.CreateMeetingJob(ctx, datastore.NewMeetingJob{
			MeetingName:   name,
			JobID:         jobID,
			Status:        datastore.JobFailed,
			FailureReason: ReasonNoConfig,
			StartedAt:     s.opts.now(),
		})
		if cerr != nil {
			return nil, cerr
		}
		s.opts.recorder.RecordOperation(metrics.OpIngest, metrics.StatusRejected)
		notify(ctx, &s.opts, s.repo, s.log, jobID)
		return job, nil
	}

	path, size, err := s.uploads.Save(jobID, name, r)
	if err != nil {
		s.opts.recorder.RecordError(metrics.OpIngest, string(errors.CategoryFileIO))
		return nil, err
	}

	job, err := s.repo.CreateMeetingJob(ctx, datastore.NewMeetingJob{
		MeetingName: name,
		JobID:       jobID,
		Status:      datastore.JobQueued,
		StartedAt:   s.opts.now(),
	})
	if err != nil {
		s.uploads.Remove(jobID)
		s.opts.recorder.RecordError(metrics.OpIngest, string(errors.CategoryDatabase))
		return nil, err
	}

	if _, err := s.scheduler.Enqueue(jobID); err != nil {
		log.Warn("job could not be scheduled", logger.Error(err))
		if ferr := s.repo.MarkFailed(context.WithoutCancel(ctx), jobID, ReasonQueueFull); ferr != nil {
			log.Error("failed to mark unscheduled job failed", logger.Error(ferr))
		}
		s.uploads.Remove(jobID)
		job.JobStatus = datastore.JobFailed
		job.FailureReason = ReasonQueueFull
		s.opts.recorder.RecordOperation(metrics.OpIngest, metrics.StatusRejected)
		notify(ctx, &s.opts, s.repo, s.log, jobID)
		return job, err
	}

	log.Info("job queued", logger.Int64("bytes", size), logger.String("path", path))
	s.opts.recorder.RecordOperation(metrics.OpIngest, metrics.StatusSuccess)
	return job, nil
}

func (s *Service) ready() error {
	if err := s.settings.PipelineReady(); err != nil {
		return err
	}
	if s.uploads == nil || s.scheduler == nil {
		return errors.Newf("upload store or scheduler missing").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Job returns a job with all of its collections.
func (s *Service) Job(ctx context.Context, jobID string) (*datastore.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// Meeting returns a meeting with its jobs.
func (s *Service) Meeting(ctx context.Context, id uint) (*datastore.Meeting, error) {
	return s.repo.GetMeeting(ctx, id)
}
