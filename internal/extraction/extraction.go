// Package extraction wraps the external models that turn a meeting video
// into timestamped events: a speech-to-text backend for the transcript and a
// shot detector plus text recognizer for on-screen text.
//
// Adapters only handle configuration problems locally (an unknown backend
// logs and yields no events). Model and tool failures are returned as errors
// and contained by the worker layer.
package extraction

import (
	"context"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/logger"
)

// Transcriber produces utterances ordered by start time.
type Transcriber interface {
	Extract(ctx context.Context, videoPath, jobID string) ([]datastore.TranscriptEvent, error)
}

// ScreenReader produces on-screen text events. Events of one shot share the
// shot's time range.
type ScreenReader interface {
	Extract(ctx context.Context, videoPath, jobID string) ([]datastore.OnScreenEvent, error)
}

// Region is one piece of text found in a frame.
type Region struct {
	Text       string
	BBox       datastore.BBox // empty when the recognizer has no geometry
	Confidence float64
}

// Recognizer reads text from a single still frame.
type Recognizer interface {
	Recognize(ctx context.Context, framePath string) ([]Region, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Shot is a contiguous time range with distinct visual content.
type Shot struct {
	Start float64
	End   float64
}

// Mid returns the representative sample time of the shot.
func (s Shot) Mid() float64 {
	return (s.Start + s.End) / 2
}

// nopTranscriber stands in for an unknown or disabled backend.
type nopTranscriber struct {
	backend string
	log     logger.Logger
}

func (n *nopTranscriber) Extract(_ context.Context, _, jobID string) ([]datastore.TranscriptEvent, error) {
	if n.backend != "" {
		n.log.Error("unknown transcription backend, skipping transcription",
			logger.String("backend", n.backend),
			logger.String("job_id", jobID))
	}
	return []datastore.TranscriptEvent{}, nil
}

// nopRecognizer stands in for an unknown or disabled OCR model.
type nopRecognizer struct{}

func (nopRecognizer) Recognize(context.Context, string) ([]Region, error) {
	return nil, nil
}

func (nopRecognizer) Name() string { return "none" }

// nopScreenReader skips OCR entirely so no frames are extracted for nothing.
type nopScreenReader struct {
	model string
	log   logger.Logger
}

func (n *nopScreenReader) Extract(_ context.Context, _, jobID string) ([]datastore.OnScreenEvent, error) {
	if n.model != "" {
		n.log.Error("unknown OCR model, will not process OCR",
			logger.String("model", n.model),
			logger.String("job_id", jobID))
	}
	return []datastore.OnScreenEvent{}, nil
}
