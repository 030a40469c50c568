package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
	"github.com/rsamf/mink/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func TestIngest_QueuesJob(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	sched := &fakeScheduler{}
	rec := metrics.NewTestRecorder()
	started := time.Unix(1_700_000_123, 0)
	svc := NewService(testSettings(uploads.Dir()), repo, uploads, sched, logger.NewDiscardLogger(),
		WithRecorder(rec), WithClock(func() time.Time { return started }))

	job, err := svc.Ingest(context.Background(), "standup.mp4", stringsReader("video bytes"))
	require.NoError(t, err)
	assert.Equal(t, datastore.JobQueued, job.JobStatus)
	assert.Len(t, job.JobID, 36)
	assert.NotZero(t, job.MeetingID)
	assert.InDelta(t, 1_700_000_123.0, job.TimeStarted, 0.001)
	assert.Equal(t, []string{job.JobID}, sched.enqueued())

	data, err := os.ReadFile(filepath.Join(uploads.Dir(), job.JobID+"_standup.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	got, err := svc.Job(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, datastore.JobQueued, got.JobStatus)

	meeting, err := svc.Meeting(context.Background(), job.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, "standup.mp4", meeting.Name)
	assert.Equal(t, 1, rec.GetOperationCount(metrics.OpIngest, metrics.StatusSuccess))
}

func TestIngest_WithoutPipelineRecordsFailedJob(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	sched := &fakeScheduler{}
	notifier := &recordingNotifier{}
	settings := testSettings("")
	svc := NewService(settings, repo, nil, sched, logger.NewDiscardLogger(), WithNotifier(notifier))

	job, err := svc.Ingest(context.Background(), "standup.mp4", stringsReader("video bytes"))
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)
	assert.Equal(t, ReasonNoConfig, job.FailureReason)
	assert.Empty(t, sched.enqueued())
	assert.Equal(t, []datastore.JobStatus{datastore.JobFailed}, notifier.statuses())

	got, err := repo.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, got.JobStatus)
}

func TestIngest_QueueFullFailsJob(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	full := errors.New(jobqueue.ErrQueueFull).Category(errors.CategoryJobQueue).Build()
	svc := NewService(testSettings(uploads.Dir()), repo, uploads, &fakeScheduler{err: full}, logger.NewDiscardLogger())

	job, err := svc.Ingest(context.Background(), "standup.mp4", stringsReader("video bytes"))
	require.Error(t, err)
	assert.ErrorIs(t, err, jobqueue.ErrQueueFull)
	require.NotNil(t, job)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)

	got, err := repo.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, got.JobStatus)
	assert.Equal(t, ReasonQueueFull, got.FailureReason)

	_, lerr := uploads.Locate(job.JobID)
	assert.ErrorIs(t, lerr, ErrUploadNotFound)
}

func TestIngest_SanitizesFilename(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	svc := NewService(testSettings(uploads.Dir()), repo, uploads, &fakeScheduler{}, logger.NewDiscardLogger())

	job, err := svc.Ingest(context.Background(), "../../etc/passwd", stringsReader("x"))
	require.NoError(t, err)

	path, err := uploads.Locate(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, uploads.Dir(), filepath.Dir(path))
	assert.Equal(t, job.JobID+"_passwd", filepath.Base(path))
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"standup.mp4":       "standup.mp4",
		"a/b/c.mov":         "c.mov",
		`C:\videos\all.mkv`: "all.mkv",
		"":                  "upload",
		"..":                "upload",
		"/":                 "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), "input %q", in)
	}
}

func TestUploadStore_LocateFallsBackToGlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := NewUploadStore(dir, time.Minute)
	require.NoError(t, err)
	saved, n, err := first.Save("job-a", "talk.mp4", stringsReader("12345"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// A fresh store has an empty index, as after a restart.
	second, err := NewUploadStore(dir, time.Minute)
	require.NoError(t, err)
	path, err := second.Locate("job-a")
	require.NoError(t, err)
	assert.Equal(t, saved, path)

	second.Remove("job-a")
	_, err = second.Locate("job-a")
	assert.ErrorIs(t, err, ErrUploadNotFound)

	_, _, err = first.Save("job-b", "talk.mp4", stringsReader("x"))
	require.NoError(t, err)
	_, _, err = first.Save("job-b", "talk.mp4", stringsReader("x"))
	require.Error(t, err, "existing uploads are never overwritten")
}

func TestProcess_CompletesAndCastsNotes(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-1")
	notifier := &recordingNotifier{}
	rec := metrics.NewTestRecorder()

	var castInput int
	caster := casterFunc(func(_ context.Context, _ string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
		castInput = len(transcript) + len(ocr)
		return []datastore.IntelligentNote{{Title: "Summary", Content: "We reviewed the roadmap."}}, nil
	})

	var seenPath string
	transcriber := transcriberFunc(func(ctx context.Context, videoPath, jobID string) ([]datastore.TranscriptEvent, error) {
		seenPath = videoPath
		return fixedTranscript()(ctx, videoPath, jobID)
	})

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, transcriber, fixedScreen(), logger.NewDiscardLogger(),
		WithCaster(caster), WithNotifier(notifier), WithRecorder(rec))

	require.NoError(t, r.Handle(context.Background(), "job-1"))
	assert.Equal(t, filepath.Join(uploads.Dir(), "job-1_standup.mp4"), seenPath)
	assert.Equal(t, 3, castInput)

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
	assert.Len(t, job.TranscriptEvents, 2)
	assert.Len(t, job.OCREvents, 1)
	require.Len(t, job.IntelligentNotes, 1)
	assert.Equal(t, "Summary", job.IntelligentNotes[0].Title)

	meeting, err := repo.GetMeeting(context.Background(), job.MeetingID)
	require.NoError(t, err)
	assert.InDelta(t, 42.25, meeting.Duration, 1e-9)

	assert.Equal(t, []datastore.JobStatus{datastore.JobCompleted}, notifier.statuses())
	assert.Equal(t, 1, rec.GetOperationCount(metrics.OpJob, metrics.StatusCompleted))
	assert.Equal(t, 1, rec.GetOperationCount(metrics.OpNotify, metrics.StatusSuccess))
}

func TestProcess_UnitFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-2")

	panicking := transcriberFunc(func(context.Context, string, string) ([]datastore.TranscriptEvent, error) {
		panic("model server crashed")
	})
	failing := screenReaderFunc(func(context.Context, string, string) ([]datastore.OnScreenEvent, error) {
		return nil, errors.NewStd("ffmpeg missing")
	})

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, panicking, failing, logger.NewDiscardLogger())
	require.NoError(t, r.Process(context.Background(), "job-2"))

	job, err := repo.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
	assert.Empty(t, job.TranscriptEvents)
	assert.NotNil(t, job.TranscriptEvents)
	assert.Empty(t, job.OCREvents)

	meeting, err := repo.GetMeeting(context.Background(), job.MeetingID)
	require.NoError(t, err)
	assert.Zero(t, meeting.Duration, "empty transcript leaves duration unchanged")
}

func TestProcess_OCRPanicKeepsTranscript(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-2b")

	transcriber := transcriberFunc(func(context.Context, string, string) ([]datastore.TranscriptEvent, error) {
		return []datastore.TranscriptEvent{{Content: "status update", Start: 5, End: 10}}, nil
	})
	crashing := screenReaderFunc(func(context.Context, string, string) ([]datastore.OnScreenEvent, error) {
		panic("ocr model segfault")
	})

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, transcriber, crashing, logger.NewDiscardLogger())
	require.NoError(t, r.Process(t.Context(), "job-2b"))

	job, err := repo.GetJob(t.Context(), "job-2b")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
	require.Len(t, job.TranscriptEvents, 1)
	assert.Equal(t, "status update", job.TranscriptEvents[0].Content)
	assert.NotNil(t, job.OCREvents)
	assert.Empty(t, job.OCREvents)

	meeting, err := repo.GetMeeting(t.Context(), job.MeetingID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, meeting.Duration, 1e-9)
}

func TestProcess_DeadlineAfterJoinKeepsResults(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-2c")

	settings := testSettings(uploads.Dir())
	settings.Pipeline.WorkerTimeout = 30 * time.Millisecond

	// Both units finish at once; the slow report hook lets the worker
	// deadline pass before the runner has joined them.
	supervisor := worker.NewSupervisor(logger.NewDiscardLogger(), worker.WithReportHook(func(rep worker.Report) {
		if rep.Name == metrics.OpOCR {
			time.Sleep(120 * time.Millisecond)
		}
	}))

	r := NewRunner(settings, repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(),
		WithSupervisor(supervisor))
	require.NoError(t, r.Process(t.Context(), "job-2c"))

	job, err := repo.GetJob(t.Context(), "job-2c")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
	assert.Empty(t, job.FailureReason)
	assert.Len(t, job.TranscriptEvents, 2)
	assert.Len(t, job.OCREvents, 1)
}

func TestProcess_MissingUploadFails(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	_, err := repo.CreateMeetingJob(context.Background(), datastore.NewMeetingJob{
		MeetingName: "ghost.mp4",
		JobID:       "job-3",
		Status:      datastore.JobQueued,
		StartedAt:   time.Now(),
	})
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(),
		WithNotifier(notifier))
	err = r.Process(context.Background(), "job-3")
	require.ErrorIs(t, err, ErrUploadNotFound)

	job, err := repo.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)
	assert.Equal(t, ReasonUploadMissing, job.FailureReason)
	assert.Equal(t, []datastore.JobStatus{datastore.JobFailed}, notifier.statuses())
}

func TestProcess_WorkerTimeoutFails(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-4")

	hanging := transcriberFunc(func(ctx context.Context, _, _ string) ([]datastore.TranscriptEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	settings := testSettings(uploads.Dir())
	settings.Pipeline.WorkerTimeout = 50 * time.Millisecond

	r := NewRunner(settings, repo, uploads, hanging, fixedScreen(), logger.NewDiscardLogger())

	start := time.Now()
	err := r.Process(context.Background(), "job-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	job, err := repo.GetJob(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)
	assert.Equal(t, ReasonWorkerTimeout, job.FailureReason)
	assert.Empty(t, job.OCREvents, "partial results are discarded")
}

func TestProcess_CancelledContextFailsAsInterrupted(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-5")

	ctx, cancel := context.WithCancel(context.Background())
	hanging := transcriberFunc(func(ctx context.Context, _, _ string) ([]datastore.TranscriptEvent, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, hanging, fixedScreen(), logger.NewDiscardLogger())
	require.Error(t, r.Process(ctx, "job-5"))

	job, err := repo.GetJob(context.Background(), "job-5")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)
	assert.Equal(t, ReasonInterrupted, job.FailureReason)
}

func TestProcess_CastingFailureKeepsCompleted(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-6")

	caster := casterFunc(func(context.Context, string, []datastore.TranscriptEvent, []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
		return []datastore.IntelligentNote{{Title: "Summary", Content: "ok"}},
			errors.Newf("note type %q: rate limited", "Actions").Category(errors.CategoryLLM).Build()
	})

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(),
		WithCaster(caster))
	require.NoError(t, r.Process(context.Background(), "job-6"))

	job, err := repo.GetJob(context.Background(), "job-6")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
	assert.Len(t, job.IntelligentNotes, 1)
}

func TestProcess_PanicAfterCompletionIsRecovered(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-7")

	caster := casterFunc(func(context.Context, string, []datastore.TranscriptEvent, []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
		panic("nil provider")
	})
	rec := metrics.NewTestRecorder()

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(),
		WithCaster(caster), WithRecorder(rec))
	err := r.Process(context.Background(), "job-7")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryWorker))

	job, err := repo.GetJob(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus, "completed status is never reverted")
	assert.Equal(t, 1, rec.GetOperationCount(metrics.OpJob, metrics.StatusFailed))
}

func TestProcess_CastingDisabledSkipsCaster(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-8")

	called := false
	caster := casterFunc(func(context.Context, string, []datastore.TranscriptEvent, []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
		called = true
		return nil, nil
	})
	settings := testSettings(uploads.Dir())
	settings.Casting.Enabled = false

	r := NewRunner(settings, repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(), WithCaster(caster))
	require.NoError(t, r.Process(context.Background(), "job-8"))
	assert.False(t, called)
}

func TestRecover_FailsInterruptedJobs(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "old-1")
	queuedJob(t, repo, uploads, "old-2")
	notifier := &recordingNotifier{}

	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger(),
		WithNotifier(notifier))
	sched := &fakeScheduler{}
	n, err := r.Recover(context.Background(), sched)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, sched.enqueued())

	for _, id := range []string{"old-1", "old-2"} {
		job, err := repo.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, datastore.JobFailed, job.JobStatus)
		assert.Equal(t, ReasonInterrupted, job.FailureReason)
	}
	assert.Len(t, notifier.statuses(), 2)
}

func TestRecover_ReschedulesWhenConfigured(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "old-1")
	queuedJob(t, repo, uploads, "old-2")

	settings := testSettings(uploads.Dir())
	settings.Pipeline.FailInterrupted = false
	r := NewRunner(settings, repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger())

	sched := &fakeScheduler{}
	n, err := r.Recover(context.Background(), sched)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"old-1", "old-2"}, sched.enqueued())

	// A full queue falls back to failing the job.
	queuedJob(t, repo, uploads, "old-3")
	_, err = r.Recover(context.Background(), &fakeScheduler{err: jobqueue.ErrQueueFull})
	require.NoError(t, err)
	job, err := repo.GetJob(context.Background(), "old-3")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobFailed, job.JobStatus)
}

func TestRunner_WithQueue(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	uploads := newTestUploads(t)
	queuedJob(t, repo, uploads, "job-q")

	done := make(chan jobqueue.Event, 4)
	r := NewRunner(testSettings(uploads.Dir()), repo, uploads, fixedTranscript(), fixedScreen(), logger.NewDiscardLogger())
	q := jobqueue.New(jobqueue.Config{Workers: 1, Size: 4}, r, logger.NewDiscardLogger(),
		jobqueue.WithObserver(func(ev jobqueue.Event) {
			if ev.Status == jobqueue.TaskCompleted || ev.Status == jobqueue.TaskFailed {
				done <- ev
			}
		}))
	require.NoError(t, q.Start(context.Background()))

	_, err := q.Enqueue("job-q")
	require.NoError(t, err)

	select {
	case ev := <-done:
		assert.Equal(t, jobqueue.TaskCompleted, ev.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	_, err = q.Stop(time.Second)
	require.NoError(t, err)

	job, err := repo.GetJob(context.Background(), "job-q")
	require.NoError(t, err)
	assert.Equal(t, datastore.JobCompleted, job.JobStatus)
}
