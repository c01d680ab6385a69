package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
)

// serviceCompletionRequest is the body of POST {base}/completions.
type serviceCompletionRequest struct {
	Messages    []serviceMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature"`
	Purpose     string           `json:"purpose,omitempty"`
}

type serviceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type serviceCompletionResponse struct {
	Completion   string `json:"completion"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ServiceCompleter calls the shared llm-service over HTTP, which picks the
// provider and model.
type ServiceCompleter struct {
	baseURL string
	purpose string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewServiceCompleter creates a completer against baseURL (e.g. http://llm-service:8000).
func NewServiceCompleter(baseURL, purpose string, timeout time.Duration, logger *zap.Logger) *ServiceCompleter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &ServiceCompleter{
		baseURL: strings.TrimRight(baseURL, "/"),
		purpose: purpose,
		http:    circuitbreaker.NewHTTPWrapper(client, "llm-service", "llm", circuitbreaker.LLMSettings(), logger),
		logger:  logger,
	}
}

// Complete posts the prompt pair and decodes the completion.
func (c *ServiceCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(serviceCompletionRequest{
		Messages: []serviceMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Purpose:     c.purpose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call llm service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm service returned status %d", resp.StatusCode)
	}

	var out serviceCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode llm service response: %w", err)
	}
	if out.Completion == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content:      out.Completion,
		Model:        out.Model,
		Provider:     out.Provider,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}, nil
}
