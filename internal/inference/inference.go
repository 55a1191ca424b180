// Package inference defines the boundary between processors and the
// underlying model provider. Processors build prompts and parse replies;
// implementations of Client own the provider SDK and error classification.
package inference

import (
	"context"
	"errors"
	"time"
)

// Error definitions for the inference boundary. Callers decide retry
// behavior from these: ErrTransientFailure is retryable, everything
// else is permanent.
var (
	// ErrInvalidConfig is returned when the client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid inference configuration")

	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrContentBlocked is returned when the provider refuses the request,
	// for example due to safety filters. Retrying cannot help.
	ErrContentBlocked = errors.New("content blocked by provider")

	// ErrInvalidResponse is returned when the provider reply is missing or
	// malformed. Retrying cannot help.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrTransientFailure is returned for provider outages, timeouts and
	// rate limits. The caller may retry.
	ErrTransientFailure = errors.New("transient provider failure")
)

// Request is a single model invocation.
type Request struct {
	// Prompt is the full prompt text sent to the model.
	Prompt string

	// Purpose labels the invocation for usage attribution, typically the
	// processor kind that issued it.
	Purpose string
}

// Response is the model's reply together with its cost.
type Response struct {
	// Text is the raw text returned by the model.
	Text string

	// Model is the concrete model name that served the request.
	Model string

	// Tokens is the total token count consumed by the request.
	Tokens int

	// Duration is the wall-clock time the invocation took.
	Duration time.Duration
}

// Client executes model invocations. Implementations perform exactly one
// attempt per call; retry policy belongs to the caller.
type Client interface {
	// Generate sends the request to the model and returns its reply.
	// Errors wrap one of the package sentinels so callers can classify
	// them without knowing the provider.
	Generate(ctx context.Context, req Request) (*Response, error)
}
