package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
)

// OpenAIConfig configures the OpenAI chat backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAICompleter calls the chat completions API directly.
type OpenAICompleter struct {
	client openai.Client
	model  string
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

// NewOpenAICompleter builds a completer. An API key is required.
func NewOpenAICompleter(cfg OpenAIConfig, logger *zap.Logger) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	cb := circuitbreaker.NewCircuitBreaker("openai", circuitbreaker.LLMSettings().ToConfig(), logger)
	circuitbreaker.GlobalMetricsCollector.Register("llm", cb)
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
		cb:     cb,
		logger: logger,
	}, nil
}

// Complete sends a system+user prompt pair.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	var resp *openai.ChatCompletion
	err := c.cb.Execute(ctx, func() error {
		var err error
		resp, err = c.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("LLM completion finished",
		zap.String("model", c.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        c.model,
		Provider:     "openai",
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
