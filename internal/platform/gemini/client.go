// Package gemini implements the inference.Client interface using Google's
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/lexfold/alchemy-api/internal/config"
	"github.com/lexfold/alchemy-api/internal/inference"
)

// Client calls the Gemini API. It performs exactly one attempt per
// Generate call; retry policy lives with the caller.
type Client struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

var _ inference.Client = (*Client)(nil)

// NewClient creates a Gemini-backed inference client.
//
// Parameters:
//   - ctx: Context for client initialization
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing the API key and model name
//
// Returns an error if the configuration is invalid or the underlying
// client cannot be constructed.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", inference.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", inference.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", inference.ErrInvalidConfig, err)
	}

	return &Client{
		logger: logger.With(slog.String("component", "gemini_client")),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Generate implements inference.Client. Errors are classified into the
// inference sentinels: API failures are assumed transient, while safety
// blocks and malformed replies are permanent.
func (c *Client) Generate(ctx context.Context, req inference.Request) (*inference.Response, error) {
	if req.Prompt == "" {
		return nil, inference.ErrEmptyPrompt
	}

	c.logger.DebugContext(ctx, "calling Gemini API",
		slog.String("model", c.model),
		slog.String("purpose", req.Purpose),
		slog.Int("prompt_length", len(req.Prompt)))

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), nil)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.ErrorContext(ctx, "Gemini API call error",
			slog.String("purpose", req.Purpose),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", inference.ErrTransientFailure, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", inference.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", inference.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: safety filters", inference.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty content in response", inference.ErrInvalidResponse)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.DebugContext(ctx, "Gemini API call successful",
		slog.String("purpose", req.Purpose),
		slog.Int("tokens", tokens),
		slog.Duration("duration", elapsed))

	return &inference.Response{
		Text:     text,
		Model:    c.model,
		Tokens:   tokens,
		Duration: elapsed,
	}, nil
}
