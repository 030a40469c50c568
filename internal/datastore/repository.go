package datastore

import (
	"context"
	"strings"
	"time"

	"github.com/rsamf/mink/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize bounds the row count of a single INSERT.
const insertBatchSize = 200

// NewMeetingJob describes the rows created synchronously at ingest.
type NewMeetingJob struct {
	MeetingName   string
	JobID         string
	Status        JobStatus // JobQueued, or JobFailed when the pipeline cannot run
	FailureReason string
	StartedAt     time.Time
}

// Repository is the persistence contract used by the HTTP layer and the
// orchestrator. Every mutating method is a single transaction.
type Repository interface {
	// CreateMeetingJob inserts a Meeting and its first Job.
	CreateMeetingJob(ctx context.Context, req NewMeetingJob) (*Job, error)
	// CompleteJob stores both event sets, moves the job from queued to
	// completed and raises the meeting duration to the last transcript end.
	CompleteJob(ctx context.Context, jobID string, transcript []TranscriptEvent, ocr []OnScreenEvent) error
	// SaveNotes stores notes for a completed job.
	SaveNotes(ctx context.Context, jobID string, notes []IntelligentNote) error
	// MarkFailed moves a queued job to failed and records the reason.
	MarkFailed(ctx context.Context, jobID, reason string) error
	// GetJob returns the job with all of its collections.
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// GetMeeting returns the meeting with its jobs and their collections.
	GetMeeting(ctx context.Context, id uint) (*Meeting, error)
	// ListQueuedJobs returns ids of jobs still waiting, oldest first.
	ListQueuedJobs(ctx context.Context) ([]string, error)
}

// jobRepository implements Repository on GORM.
type jobRepository struct {
	db *gorm.DB
}

// NewRepository creates a Repository backed by db.
func NewRepository(db *gorm.DB) Repository {
	return &jobRepository{db: db}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// CreateMeetingJob inserts the meeting and job together.
func (r *jobRepository) CreateMeetingJob(ctx context.Context, req NewMeetingJob) (*Job, error) {
	if req.JobID == "" {
		return nil, errors.New(errors.NewStd("job id is required")).
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Status == "" {
		req.Status = JobQueued
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = time.Now()
	}
	started := epochSeconds(req.StartedAt)

	job := &Job{
		JobID:         req.JobID,
		JobStatus:     req.Status,
		TimeStarted:   started,
		FailureReason: req.FailureReason,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meeting := &Meeting{Name: req.MeetingName, TimeStarted: started}
		if err := tx.Create(meeting).Error; err != nil {
			return err
		}
		job.MeetingID = meeting.ID
		return tx.Create(job).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, errors.New(ErrDuplicateKey).
				Category(errors.CategoryConflict).
				JobContext(req.JobID).
				Build()
		}
		return nil, dbError(err, "create_meeting_job", req.JobID)
	}

	job.ensureCollections()
	return job, nil
}

// CompleteJob persists core results. The status update is guarded on
// job_status = 'queued' so a job can never complete twice or revive after
// failing.
func (r *jobRepository) CompleteJob(ctx context.Context, jobID string, transcript []TranscriptEvent, ocr []OnScreenEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.Clauses(lockingClause(tx)...).
			Where("job_id = ?", jobID).
			First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.JobStatus != JobQueued {
			return ErrInvalidTransition
		}

		for i := range transcript {
			transcript[i].ID = 0
			transcript[i].JobID = jobID
		}
		for i := range ocr {
			ocr[i].ID = 0
			ocr[i].JobID = jobID
			if ocr[i].BBox == nil {
				ocr[i].BBox = BBox{}
			}
		}
		if len(transcript) > 0 {
			if err := tx.CreateInBatches(transcript, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(ocr) > 0 {
			if err := tx.CreateInBatches(ocr, insertBatchSize).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&Job{}).
			Where("job_id = ? AND job_status = ?", jobID, JobQueued).
			Updates(map[string]any{
				"job_status": JobCompleted,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrInvalidTransition
		}

		// Duration only grows; an empty transcript leaves it untouched.
		if n := len(transcript); n > 0 {
			last := transcript[n-1].End
			if err := tx.Model(&Meeting{}).
				Where("id = ? AND duration < ?", job.MeetingID, last).
				Update("duration", last).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return r.wrapJobError(err, "complete_job", jobID)
}

// SaveNotes stores enrichment output independently of CompleteJob.
func (r *jobRepository) SaveNotes(ctx context.Context, jobID string, notes []IntelligentNote) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.Select("job_id", "job_status").
			Where("job_id = ?", jobID).
			First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.JobStatus != JobCompleted {
			return ErrInvalidTransition
		}

		if len(notes) > 0 {
			for i := range notes {
				notes[i].ID = 0
				notes[i].JobID = jobID
			}
			if err := tx.CreateInBatches(notes, insertBatchSize).Error; err != nil {
				return err
			}
		}

		return tx.Model(&Job{}).
			Where("job_id = ?", jobID).
			Update("updated_at", time.Now().UTC()).Error
	})
	return r.wrapJobError(err, "save_notes", jobID)
}

// MarkFailed moves a queued job to failed. Terminal jobs are left alone and
// reported with ErrInvalidTransition.
func (r *jobRepository) MarkFailed(ctx context.Context, jobID, reason string) error {
	if len(reason) > 512 {
		reason = strings.ToValidUTF8(reason[:512], "")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Job{}).
			Where("job_id = ? AND job_status = ?", jobID, JobQueued).
			Updates(map[string]any{
				"job_status":     JobFailed,
				"failure_reason": reason,
				"updated_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		var count int64
		if err := tx.Model(&Job{}).Where("job_id = ?", jobID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrJobNotFound
		}
		return ErrInvalidTransition
	})
	return r.wrapJobError(err, "mark_failed", jobID)
}

// GetJob loads a job with its events in timeline order.
func (r *jobRepository) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Preload("TranscriptEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("start ASC, id ASC")
		}).
		Preload("OCREvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("start ASC, id ASC")
		}).
		Preload("IntelligentNotes", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("job_id = ?", jobID).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrJobNotFound
		}
		return nil, r.wrapJobError(err, "get_job", jobID)
	}

	job.ensureCollections()
	return &job, nil
}

// GetMeeting loads a meeting and its jobs, oldest job first.
func (r *jobRepository) GetMeeting(ctx context.Context, id uint) (*Meeting, error) {
	var meeting Meeting
	err := r.db.WithContext(ctx).
		Preload("Jobs", func(db *gorm.DB) *gorm.DB {
			return db.Order("time_started ASC")
		}).
		Preload("Jobs.TranscriptEvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("start ASC, id ASC")
		}).
		Preload("Jobs.OCREvents", func(db *gorm.DB) *gorm.DB {
			return db.Order("start ASC, id ASC")
		}).
		Preload("Jobs.IntelligentNotes", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&meeting, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(ErrMeetingNotFound).
				Category(errors.CategoryNotFound).
				Context("meeting_id", id).
				Build()
		}
		return nil, dbError(err, "get_meeting", "")
	}

	if meeting.Jobs == nil {
		meeting.Jobs = []Job{}
	}
	for i := range meeting.Jobs {
		meeting.Jobs[i].ensureCollections()
	}
	return &meeting, nil
}

// ListQueuedJobs returns the ids of non-terminal jobs.
func (r *jobRepository) ListQueuedJobs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("job_status = ?", JobQueued).
		Order("time_started ASC").
		Pluck("job_id", &ids).Error
	if err != nil {
		return nil, dbError(err, "list_queued_jobs", "")
	}
	return ids, nil
}

// wrapJobError maps sentinels to categorized errors and leaves nil alone.
func (r *jobRepository) wrapJobError(err error, operation, jobID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrJobNotFound):
		return errors.New(ErrJobNotFound).
			Category(errors.CategoryNotFound).
			Context("operation", operation).
			JobContext(jobID).
			Build()
	case errors.Is(err, ErrInvalidTransition):
		return errors.New(ErrInvalidTransition).
			Category(errors.CategoryConflict).
			Context("operation", operation).
			JobContext(jobID).
			Build()
	default:
		return dbError(err, operation, jobID)
	}
}

// lockingClause takes a row lock where the dialect supports it. SQLite
// already serializes writers.
func lockingClause(tx *gorm.DB) []clause.Expression {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
}
