package reanswer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
)

// Request asks the answer service to regenerate an answer over the job's
// current evidence.
type Request struct {
	JobID    uuid.UUID `json:"job_id"`
	PlanID   uuid.UUID `json:"plan_id"`
	Question string    `json:"question"`
}

// Result identifies the new answer and what it cost.
type Result struct {
	QAID         uuid.UUID `json:"qa_id"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

// Reanswerer is the answer-regeneration collaborator.
type Reanswerer interface {
	Reanswer(ctx context.Context, req Request) (*Result, error)
}

// Client calls POST {base}/jobs/{job_id}/qa.
type Client struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewClient creates a client with its own breaker.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout, Transport: interceptors.NewActivityHeaders(nil)}, "reanswer", "research-api",
			circuitbreaker.LLMSettings(), logger),
		logger: logger,
	}
}

type qaRequest struct {
	Question string `json:"question"`
	Trigger  string `json:"trigger"`
	PlanID   string `json:"plan_id"`
}

type qaResponse struct {
	ID       string `json:"id"`
	QAID     string `json:"qa_id"`
	LLMUsage struct {
		Model        string `json:"model"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
	} `json:"llm_usage"`
}

// Reanswer regenerates the answer synchronously.
func (c *Client) Reanswer(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(qaRequest{Question: req.Question, Trigger: "micro_research", PlanID: req.PlanID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode reanswer request: %w", err)
	}
	url := fmt.Sprintf("%s/jobs/%s/qa", c.baseURL, req.JobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build reanswer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reanswer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read reanswer response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("reanswer returned %d", resp.StatusCode)
	}

	var out qaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode reanswer response: %w", err)
	}
	idStr := out.QAID
	if idStr == "" {
		idStr = out.ID
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("reanswer returned invalid qa id %q: %w", idStr, err)
	}

	c.logger.Debug("Reanswer completed",
		zap.String("job_id", req.JobID.String()),
		zap.String("qa_id", id.String()),
	)
	return &Result{
		QAID:         id,
		Model:        out.LLMUsage.Model,
		InputTokens:  out.LLMUsage.InputTokens,
		OutputTokens: out.LLMUsage.OutputTokens,
	}, nil
}
