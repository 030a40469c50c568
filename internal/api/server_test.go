package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsamf/mink/internal/buildinfo"
	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability"
)

// fakeService serves canned jobs and records uploads.
type fakeService struct {
	mu        sync.Mutex
	uploads   map[string]string
	jobs      map[string]*datastore.Job
	meetings  map[uint]*datastore.Meeting
	ingestErr error
}

func newFakeService() *fakeService {
	return &fakeService{
		uploads:  map[string]string{},
		jobs:     map[string]*datastore.Job{},
		meetings: map[uint]*datastore.Meeting{},
	}
}

func (f *fakeService) Ingest(_ context.Context, filename string, r io.Reader) (*datastore.Job, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[filename] = string(data)
	job := &datastore.Job{JobID: "6f1c9d7e-0000-4000-8000-000000000001", JobStatus: datastore.JobQueued, MeetingID: 1, TimeStarted: 1_700_000_000}
	if f.ingestErr != nil {
		job.JobStatus = datastore.JobFailed
		return job, f.ingestErr
	}
	return job, nil
}

func (f *fakeService) Job(_ context.Context, jobID string) (*datastore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		return j, nil
	}
	return nil, errors.New(datastore.ErrJobNotFound).Category(errors.CategoryNotFound).Build()
}

func (f *fakeService) Meeting(_ context.Context, id uint) (*datastore.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.meetings[id]; ok {
		return m, nil
	}
	return nil, errors.New(datastore.ErrMeetingNotFound).Category(errors.CategoryNotFound).Build()
}

type fakeQueue struct{}

func (fakeQueue) Stats() jobqueue.StatsSnapshot {
	return jobqueue.StatsSnapshot{Workers: 2, Capacity: 64, Pending: 1}
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Server:     conf.ServerSettings{Port: 8000, BodyLimit: "10M"},
		Auth:       conf.AuthSettings{Type: conf.AuthNone},
		Storage:    conf.StorageSettings{UploadDir: t.TempDir()},
		Transcript: conf.TranscriptSettings{Backend: "whisper"},
		OCR:        conf.OCRSettings{Model: "tesseract"},
	}
}

func newTestServer(t *testing.T, settings *conf.Settings, svc JobService, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{
		WithService(svc),
		WithLogger(logger.NewDiscardLogger()),
		WithQueueStats(fakeQueue{}),
		WithBuildInfo(buildinfo.NewContext("1.4.0", "2026-01-01", "abc123")),
	}, opts...)
	s, err := New(settings, opts...)
	require.NoError(t, err)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/take-notes", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTakeNotes(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	s := newTestServer(t, testSettings(t), svc)

	rec := serve(s, uploadRequest(t, "file", "standup.mp4", "video bytes"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "queued", body["job_status"])
	assert.Equal(t, "6f1c9d7e-0000-4000-8000-000000000001", body["job_id"])
	assert.InDelta(t, 1.0, body["meeting_id"], 1e-9)
	assert.Contains(t, body, "time_started")
	assert.Equal(t, "video bytes", svc.uploads["standup.mp4"])
}

func TestTakeNotes_MissingFile(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(t), newFakeService())

	rec := serve(s, uploadRequest(t, "video", "standup.mp4", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "file")
}

func TestTakeNotes_QueueFull(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.ingestErr = errors.New(jobqueue.ErrQueueFull).Category(errors.CategoryJobQueue).Build()
	s := newTestServer(t, testSettings(t), svc)

	rec := serve(s, uploadRequest(t, "file", "standup.mp4", "x"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	job := &datastore.Job{JobID: "job-1", JobStatus: datastore.JobCompleted, MeetingID: 3,
		TranscriptEvents: []datastore.TranscriptEvent{}, OCREvents: []datastore.OnScreenEvent{}, IntelligentNotes: []datastore.IntelligentNote{}}
	svc.jobs["job-1"] = job
	s := newTestServer(t, testSettings(t), svc)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/job/job-1", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "completed", body["job_status"])
	for _, key := range []string{"transcript_events", "ocr_events", "intelligent_notes"} {
		assert.IsType(t, []any{}, body[key], key)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/job/nope", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	notFound := decode(t, rec)
	assert.Equal(t, "Job not found", notFound["detail"])
	assert.Len(t, notFound["correlation_id"], 8)
}

func TestGetMeeting(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.meetings[4] = &datastore.Meeting{ID: 4, Name: "standup.mp4", Duration: 42}
	s := newTestServer(t, testSettings(t), svc)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/meeting/4", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "standup.mp4", body["name"])
	assert.IsType(t, []any{}, body["jobs"])

	for _, path := range []string{"/meeting/99", "/meeting/abc", "/meeting/0", "/meeting/-1"} {
		rec = serve(s, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAPIKeyGate(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Auth = conf.AuthSettings{Type: conf.AuthStatic, Keys: []string{"k-one", "k-two"}}
	svc := newFakeService()
	svc.jobs["job-1"] = &datastore.Job{JobID: "job-1", JobStatus: datastore.JobQueued}
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	s := newTestServer(t, settings, svc, WithMetrics(m))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/job/job-1", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid or missing API Key"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/job/job-1", http.NoBody)
	req.Header.Set("X-API-Key", "k-wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/job/job-1", http.NoBody)
	req.Header.Set("X-API-Key", "k-two")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)

	rec = serve(s, uploadRequest(t, "file", "a.mp4", "x"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.uploads)

	for _, path := range []string{"/docs", "/openapi.json", "/redoc", "/health"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestDocs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(t), newFakeService())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/openapi.json", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	info := doc["info"].(map[string]any)
	assert.Equal(t, "1.4.0", info["version"])
	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/take-notes")
	assert.Contains(t, paths, "/job/{job_id}")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/docs", http.NoBody))
	assert.Contains(t, rec.Body.String(), "swagger-ui")
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/redoc", http.NoBody))
	assert.Contains(t, rec.Body.String(), `spec-url="/openapi.json"`)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(t), newFakeService())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.4.0", body["version"])
	queue := body["queue"].(map[string]any)
	assert.InDelta(t, 2.0, queue["workers"], 1e-9)

	settings := testSettings(t)
	settings.Transcript.Backend = conf.BackendNone
	settings.OCR.Model = conf.BackendNone
	s = newTestServer(t, settings, newFakeService())
	body = decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody)))
	assert.Equal(t, "degraded", body["status"])
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(t), newFakeService())
	req := httptest.NewRequest(http.MethodOptions, "/take-notes", http.NoBody)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-API-Key")
	rec := serve(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestNew_RequiresService(t *testing.T) {
	t.Parallel()

	_, err := New(testSettings(t), WithLogger(logger.NewDiscardLogger()))
	require.Error(t, err)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Server.Host = "127.0.0.1"
	settings.Server.CORSOrigins = []string{"https://meet.example.com"}
	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "127.0.0.1:8000", cfg.Address())
	assert.Equal(t, []string{"https://meet.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.NoError(t, cfg.Validate())

	cfg.BodyLimit = "lots"
	require.Error(t, cfg.Validate())

	cfg = ConfigFromSettings(settings)
	cfg.AuthType = conf.AuthStatic
	require.Error(t, cfg.Validate())
}
