package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// ShotReader is the OCR adapter: it splits the video into shots, samples the
// middle frame of each and runs a Recognizer on it.
type ShotReader struct {
	media      *Media
	recognizer Recognizer
	threshold  float64
	maxShots   int
	log        logger.Logger
}

// NewShotReader creates the OCR adapter.
func NewShotReader(media *Media, recognizer Recognizer, threshold float64, maxShots int, log logger.Logger) *ShotReader {
	return &ShotReader{
		media:      media,
		recognizer: recognizer,
		threshold:  threshold,
		maxShots:   maxShots,
		log:        log,
	}
}

// Extract returns every recognized region as an event spanning its shot.
func (r *ShotReader) Extract(ctx context.Context, videoPath, jobID string) ([]datastore.OnScreenEvent, error) {
	log := r.log.With(logger.String("job_id", jobID), logger.String("recognizer", r.recognizer.Name()))
	log.Info("starting OCR processing")

	shots, err := r.media.DetectShots(ctx, videoPath, r.threshold, r.maxShots)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryOCR).
			JobContext(jobID).
			Context("stage", "shot_detection").
			Build()
	}
	log.Debug("shots detected", logger.Int("shots", len(shots)))

	frameDir, err := os.MkdirTemp("", "mink-frames-*")
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryFileIO).JobContext(jobID).Build()
	}
	defer func() { _ = os.RemoveAll(frameDir) }()

	events := []datastore.OnScreenEvent{}
	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		framePath := filepath.Join(frameDir, fmt.Sprintf("shot-%04d.png", i))
		if err := r.media.ExtractFrame(ctx, videoPath, shot.Mid(), framePath); err != nil {
			// An unreadable frame loses one shot, not the whole pass.
			log.Warn("could not read frame",
				logger.Float64("at", shot.Mid()),
				logger.Error(err))
			continue
		}

		regions, err := r.recognizer.Recognize(ctx, framePath)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryOCR).
				JobContext(jobID).
				Context("shot", i).
				Build()
		}
		for _, reg := range regions {
			box, conf := NormalizeBBox(reg.BBox, reg.Confidence)
			events = append(events, datastore.OnScreenEvent{
				Content:    reg.Text,
				Start:      shot.Start,
				End:        shot.End,
				BBox:       box,
				Confidence: conf,
			})
		}
		_ = os.Remove(framePath)
	}

	log.Info("OCR complete", logger.Int("events", len(events)), logger.Int("shots", len(shots)))
	return events, nil
}
