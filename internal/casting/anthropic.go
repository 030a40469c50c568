package casting

import (
	"context"
	"strings"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
)

const (
	// DefaultAnthropicBaseURL is used when no base URL is configured.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 1024
)

// Provider completes a single prompt.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *httpclient.Client
}

// NewAnthropicProvider creates a provider. An empty baseURL selects the
// public API.
func NewAnthropicProvider(baseURL, apiKey, model string, client *httpclient.Client) *AnthropicProvider {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends prompt as a single user message and returns the
// concatenated text blocks of the answer.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/v1/messages", headers, req, &resp); err != nil {
		return "", errors.New(err).
			Category(errors.CategoryLLM).
			Context("provider", p.Name()).
			Context("model", p.model).
			Build()
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.Newf("anthropic response contained no text (stop_reason=%s)", resp.StopReason).
			Category(errors.CategoryLLM).
			Context("model", p.model).
			Build()
	}
	return b.String(), nil
}
