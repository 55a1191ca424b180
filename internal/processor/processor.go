// Package processor defines the content transformations the engine can
// run. Each processor owns payload validation, cache key discriminators
// and the model interaction for one domain.ProcessorKind. The kind set is
// closed; dispatch happens through the Registry, never over raw strings.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/inference"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// validate is the shared validator instance for payload structs.
var validate = validator.New()

// Result is the outcome of a processor execution.
type Result struct {
	// Output is the result document persisted on the job.
	Output json.RawMessage

	// Usage summarizes the model cost of the execution. Cache hits skip
	// execution entirely, so a Result always carries real usage.
	Usage *usage.Summary
}

// Processor executes one kind of content transformation.
type Processor interface {
	// Kind identifies the transformation.
	Kind() domain.ProcessorKind

	// ValidatePayload checks the payload synchronously at submission time.
	// Returns an error wrapping domain.ErrValidation if the payload is
	// structurally invalid for this kind.
	ValidatePayload(payload json.RawMessage) error

	// Discriminators extracts the payload fields that determine the
	// output. Two payloads with equal discriminators are semantically
	// equivalent and may share a cached result.
	Discriminators(payload json.RawMessage) (fingerprint.Discriminators, error)

	// Execute runs the transformation against the model.
	Execute(ctx context.Context, payload json.RawMessage) (*Result, error)
}

// Registry resolves processors by kind.
type Registry struct {
	processors map[domain.ProcessorKind]Processor
}

// NewRegistry creates a registry holding the given processors.
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[domain.ProcessorKind]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Kind()] = p
	}
	return r
}

// Get returns the processor for the given kind.
// Returns domain.ErrInvalidProcessorKind if no processor is registered.
func (r *Registry) Get(kind domain.ProcessorKind) (Processor, error) {
	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProcessorKind, kind)
	}
	return p, nil
}

// Kinds returns the registered processor kinds.
func (r *Registry) Kinds() []domain.ProcessorKind {
	kinds := make([]domain.ProcessorKind, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	return kinds
}

// decodePayload unmarshals and validates a payload struct.
func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return domain.ErrEmptyPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence from model
// output. Models frequently wrap JSON replies in ```json blocks.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// singleUseSummary builds a usage summary for one model invocation.
func singleUseSummary(kind domain.ProcessorKind, resp *inference.Response) *usage.Summary {
	summary := usage.NewSummary()
	summary.Record(resp.Model, string(kind), resp.Tokens, resp.Duration)
	return summary
}
