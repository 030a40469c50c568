package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
)

// EasyOCRRecognizer posts frames to an HTTP wrapper around EasyOCR's
// readtext, which answers with its native result list:
//
//	[[[[x,y],[x,y],[x,y],[x,y]], "text", 0.97], ...]
type EasyOCRRecognizer struct {
	endpoint string
	langs    []string
	client   *httpclient.Client
}

// NewEasyOCRRecognizer creates the recognizer.
func NewEasyOCRRecognizer(endpoint string, langs []string, client *httpclient.Client) *EasyOCRRecognizer {
	return &EasyOCRRecognizer{endpoint: endpoint, langs: langs, client: client}
}

// Name returns "easyocr".
func (e *EasyOCRRecognizer) Name() string { return "easyocr" }

// Recognize returns one region per detection.
func (e *EasyOCRRecognizer) Recognize(ctx context.Context, framePath string) ([]Region, error) {
	f, err := os.Open(framePath) //nolint:gosec // frame written by ExtractFrame
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryFileIO).Context("frame", framePath).Build()
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if len(e.langs) > 0 {
		if err := mw.WriteField("lang", strings.Join(e.langs, ",")); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("image", filepath.Base(framePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := e.client.PostMultipart(ctx, e.endpoint, mw.FormDataContentType(), &body, nil, &raw); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryOCR).
			Context("endpoint", e.endpoint).
			Build()
	}

	regions, err := decodeEasyOCR(raw)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryOCR).Build()
	}
	return regions, nil
}

func decodeEasyOCR(raw [][]json.RawMessage) ([]Region, error) {
	regions := make([]Region, 0, len(raw))
	for _, item := range raw {
		if len(item) < 3 {
			return nil, errors.Newf("easyocr result has %d fields, want 3", len(item)).Build()
		}
		var (
			points [][2]float64
			text   string
			conf   float64
		)
		if err := json.Unmarshal(item[0], &points); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(item[1], &text); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(item[2], &conf); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		box, conf := NormalizeBBox(cornersToBBox(points), conf)
		regions = append(regions, Region{Text: text, BBox: box, Confidence: conf})
	}
	return regions, nil
}
