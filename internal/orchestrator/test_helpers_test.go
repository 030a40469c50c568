package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
)

func testSettings(uploadDir string) *conf.Settings {
	return &conf.Settings{
		Storage:    conf.StorageSettings{UploadDir: uploadDir, UploadIndexTTL: time.Minute},
		Transcript: conf.TranscriptSettings{Backend: "whisper"},
		OCR:        conf.OCRSettings{Model: "tesseract"},
		Pipeline:   conf.PipelineSettings{WorkerTimeout: 5 * time.Second, FailInterrupted: true},
		Casting: conf.CastingSettings{
			Enabled: true,
			APIKey:  "test-key",
			Types:   []conf.NoteType{{Title: "Summary", Prompt: "Summarize"}},
		},
	}
}

func newTestRepository(t *testing.T) datastore.Repository {
	t.Helper()

	m, err := datastore.NewSQLiteManager(&conf.DBSettings{Path: ":memory:"}, logger.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	t.Cleanup(func() { _ = m.Close() })

	return datastore.NewRepository(m.DB())
}

func newTestUploads(t *testing.T) *UploadStore {
	t.Helper()
	s, err := NewUploadStore(t.TempDir(), time.Minute)
	require.NoError(t, err)
	return s
}

// fakeScheduler records enqueued ids, or rejects them with err.
type fakeScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeScheduler) Enqueue(jobID string) (*jobqueue.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.ids = append(f.ids, jobID)
	return &jobqueue.Task{JobID: jobID}, nil
}

func (f *fakeScheduler) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// recordingNotifier keeps every notified job.
type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*datastore.Job
}

func (n *recordingNotifier) Notify(_ context.Context, job *datastore.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func (n *recordingNotifier) statuses() []datastore.JobStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]datastore.JobStatus, 0, len(n.jobs))
	for _, j := range n.jobs {
		out = append(out, j.JobStatus)
	}
	return out
}

type transcriberFunc func(ctx context.Context, videoPath, jobID string) ([]datastore.TranscriptEvent, error)

func (f transcriberFunc) Extract(ctx context.Context, videoPath, jobID string) ([]datastore.TranscriptEvent, error) {
	return f(ctx, videoPath, jobID)
}

type screenReaderFunc func(ctx context.Context, videoPath, jobID string) ([]datastore.OnScreenEvent, error)

func (f screenReaderFunc) Extract(ctx context.Context, videoPath, jobID string) ([]datastore.OnScreenEvent, error) {
	return f(ctx, videoPath, jobID)
}

type casterFunc func(ctx context.Context, jobID string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error)

func (f casterFunc) Cast(ctx context.Context, jobID string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
	return f(ctx, jobID, transcript, ocr)
}

func fixedTranscript() transcriberFunc {
	return func(context.Context, string, string) ([]datastore.TranscriptEvent, error) {
		return []datastore.TranscriptEvent{
			{Content: "welcome everyone", Start: 0, End: 4.5},
			{Content: "first item", Start: 5, End: 42.25},
		}, nil
	}
}

func fixedScreen() screenReaderFunc {
	return func(context.Context, string, string) ([]datastore.OnScreenEvent, error) {
		return []datastore.OnScreenEvent{
			{Content: "Q3 Roadmap", Start: 0, End: 30, BBox: datastore.BBox{10, 10, 200, 40}, Confidence: 0.9},
		}, nil
	}
}

// queuedJob creates a queued job with a stored upload.
func queuedJob(t *testing.T, repo datastore.Repository, uploads *UploadStore, jobID string) {
	t.Helper()
	_, err := repo.CreateMeetingJob(context.Background(), datastore.NewMeetingJob{
		MeetingName: "standup.mp4",
		JobID:       jobID,
		Status:      datastore.JobQueued,
		StartedAt:   time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)
	_, _, err = uploads.Save(jobID, "standup.mp4", stringsReader("video bytes"))
	require.NoError(t, err)
}
