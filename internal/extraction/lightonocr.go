package extraction

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
)

// LightOnRecognizer asks a vision-language OCR model, served behind an
// OpenAI compatible chat completion endpoint (e.g. vLLM serving
// lightonai/LightOnOCR-2-1B), to transcribe a whole frame. The model
// reports no geometry, so regions carry an empty box and confidence 1.0.
type LightOnRecognizer struct {
	endpoint  string
	model     string
	maxTokens int
	client    *httpclient.Client
}

// NewLightOnRecognizer creates the recognizer.
func NewLightOnRecognizer(endpoint, model string, maxTokens int, client *httpclient.Client) *LightOnRecognizer {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LightOnRecognizer{
		endpoint:  endpoint,
		model:     model,
		maxTokens: maxTokens,
		client:    client,
	}
}

// Name returns "lightonocr".
func (l *LightOnRecognizer) Name() string { return "lightonocr" }

type chatImageURL struct {
	URL string `json:"url"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Recognize returns at most one region holding all text of the frame.
func (l *LightOnRecognizer) Recognize(ctx context.Context, framePath string) ([]Region, error) {
	data, err := os.ReadFile(framePath) //nolint:gosec // frame written by ExtractFrame
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryFileIO).Context("frame", framePath).Build()
	}

	req := chatRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)},
			}},
		}},
	}

	var resp chatResponse
	if err := l.client.PostJSON(ctx, l.endpoint, nil, req, &resp); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryOCR).
			Context("endpoint", l.endpoint).
			Build()
	}

	if len(resp.Choices) == 0 {
		return nil, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, nil
	}
	return []Region{{Text: text, BBox: nil, Confidence: 1.0}}, nil
}
