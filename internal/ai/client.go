// Package ai provides the narrow port to the external generative-AI
// completion collaborator. Scoring logic depends only on the Completer
// interface so it stays pure and testable offline; provider failures are
// surfaced as errors for callers to absorb into documented fallbacks.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/common"
)

// CompletionRequest is one text-completion call.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer is the completion port consumed by the engines.
type Completer interface {
	// Complete returns the raw completion text, or an error when the
	// provider is unreachable or rejects the call. Implementations must
	// honor ctx cancellation.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// HTTPClient calls an OpenAI-compatible completion endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a completion client from configuration.
func NewHTTPClient(cfg config.AIConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type completionPayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete implements Completer against a chat-completions endpoint.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.baseURL == "" {
		return "", common.NewError(common.CodeProvider, "ai backend not configured", nil)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(completionPayload{
		Model:       model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", common.WrapWithCode(err, common.CodeProvider, "failed to encode completion request", nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", common.WrapWithCode(err, common.CodeProvider, "failed to build completion request", nil)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", common.WrapWithCode(err, common.CodeProvider, "completion call failed", nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bounded read keeps a misbehaving provider from ballooning logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", common.NewError(common.CodeProvider, "completion backend returned non-200", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(snippet),
		})
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", common.WrapWithCode(err, common.CodeProvider, "failed to decode completion response", nil)
	}
	if len(parsed.Choices) == 0 {
		return "", common.NewError(common.CodeProvider, "completion response has no choices", nil)
	}

	text := parsed.Choices[0].Message.Content
	c.logger.Debug("completion received",
		zap.String("model", model),
		zap.Int("length", len(text)),
	)
	return text, nil
}

// ExtractJSON locates the JSON object inside a completion by first and last
// brace and unmarshals it into out. Providers wrap JSON in prose and code
// fences; everything outside the outermost braces is ignored.
func ExtractJSON(text string, out interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return common.NewError(common.CodeProvider, "no JSON object in completion", map[string]interface{}{
			"length": len(text),
		})
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return common.WrapWithCode(err, common.CodeProvider, "malformed JSON in completion", nil)
	}
	return nil
}

// Disabled is a Completer that always reports the backend as unavailable.
// Wiring it keeps every engine on its documented fallback path.
type Disabled struct{}

// Complete implements Completer.
func (Disabled) Complete(context.Context, CompletionRequest) (string, error) {
	return "", common.NewError(common.CodeProvider, "ai backend disabled", nil)
}

var _ Completer = (*HTTPClient)(nil)
var _ Completer = Disabled{}

// PromptBudget truncates a prompt section to at most n runes, appending an
// ellipsis marker when cut. Summaries sent to the provider stay compact.
// Cutting on rune boundaries keeps multi-byte input valid UTF-8.
func PromptBudget(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:n]))
}
