package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const anthropicAPIBase = "https://api.anthropic.com/v1/messages"

// AnthropicBackend implements Backend against the Anthropic messages API.
// Grounded on the teacher's internal/github.PATClient: a thin REST client
// built directly on net/http rather than a provider SDK, since none of
// the example repos pull in an LLM client library.
type AnthropicBackend struct {
	httpClient *http.Client
}

// NewAnthropicBackend builds an AnthropicBackend with a bounded client
// timeout; the adapter itself applies a shorter per-call deadline.
func NewAnthropicBackend() *AnthropicBackend {
	return &AnthropicBackend{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []anthropicMessage  `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize sends prompt to the Anthropic messages endpoint and returns
// the first content block's text.
func (b *AnthropicBackend) Summarize(ctx context.Context, apiKey, model, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: 128,
		Messages:  []anthropicMessage{{Role: "user", Content: "Summarize in one short line: " + prompt}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal summarizer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIBase, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("summarizer backend returned %d: %s", resp.StatusCode, string(errBody))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", nil
	}
	return out.Content[0].Text, nil
}
