package extraction

import (
	"cmp"
	"context"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
	"github.com/rsamf/mink/internal/logger"
)

// WhisperTranscriber sends the soundtrack to an OpenAI compatible
// transcription server (faster-whisper-server, whisper.cpp server, etc).
type WhisperTranscriber struct {
	settings conf.TranscriptSettings
	media    *Media
	client   *httpclient.Client
	log      logger.Logger
}

// NewWhisperTranscriber creates the adapter. The settings are copied.
func NewWhisperTranscriber(settings *conf.TranscriptSettings, media *Media, client *httpclient.Client, log logger.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		settings: *settings,
		media:    media,
		client:   client,
		log:      log,
	}
}

type whisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
}

// Extract transcribes videoPath. Audio is demuxed with ffmpeg first so only
// the compact WAV goes over the wire.
func (w *WhisperTranscriber) Extract(ctx context.Context, videoPath, jobID string) ([]datastore.TranscriptEvent, error) {
	log := w.log.With(logger.String("job_id", jobID))
	log.Info("starting transcription",
		logger.String("model", w.settings.ModelSize),
		logger.String("precision", w.settings.Precision),
		logger.Int("batch_size", w.settings.BatchSize))

	tmpDir, err := os.MkdirTemp("", "mink-audio-*")
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryFileIO).JobContext(jobID).Build()
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	audioPath := filepath.Join(tmpDir, "audio.wav")
	if err := w.media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, err
	}

	resp, err := w.transcribe(ctx, audioPath)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryTranscription).
			JobContext(jobID).
			Context("endpoint", w.settings.Endpoint).
			Build()
	}

	events := segmentsToEvents(resp.Segments)
	log.Info("transcription finished",
		logger.Int("events", len(events)),
		logger.String("language", resp.Language))
	return events, nil
}

func (w *WhisperTranscriber) transcribe(ctx context.Context, audioPath string) (*whisperResponse, error) {
	f, err := os.Open(audioPath) //nolint:gosec // path is a temp file we created
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	mw := multipart.NewWriter(pw)

	// Stream the form so long recordings are never held in memory.
	go func() {
		err := writeWhisperForm(mw, &w.settings, f)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()

	headers := map[string]string{}
	if w.settings.APIKey != "" {
		headers["Authorization"] = "Bearer " + w.settings.APIKey
	}

	var out whisperResponse
	if err := w.client.PostMultipart(ctx, w.settings.Endpoint, mw.FormDataContentType(), pr, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeWhisperForm(mw *multipart.Writer, s *conf.TranscriptSettings, audio io.Reader) error {
	fields := [][2]string{
		{"model", s.ModelSize},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
		{"compute_type", s.Precision},
		{"batch_size", strconv.Itoa(s.BatchSize)},
		{"vad_filter", "true"},
	}
	if s.Language != "" {
		fields = append(fields, [2]string{"language", s.Language})
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return err
	}
	_, err = io.Copy(part, audio)
	return err
}

// segmentsToEvents drops blank segments, repairs inverted ranges and orders
// by start time.
func segmentsToEvents(segments []whisperSegment) []datastore.TranscriptEvent {
	events := make([]datastore.TranscriptEvent, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start, end := seg.Start, seg.End
		if end < start {
			end = start
		}
		events = append(events, datastore.TranscriptEvent{
			Content: text,
			Start:   start,
			End:     end,
		})
	}
	slices.SortStableFunc(events, func(a, b datastore.TranscriptEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return events
}
