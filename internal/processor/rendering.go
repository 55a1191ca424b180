package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/inference"
)

// renderingPayload is the submission payload for rendering jobs.
type renderingPayload struct {
	Template string                     `json:"template" validate:"required"`
	Data     map[string]json.RawMessage `json:"data"`
	Tone     string                     `json:"tone"`
}

// renderingResult is the result document for rendering jobs.
type renderingResult struct {
	Rendered string `json:"rendered"`
}

// Rendering turns a template plus data into finished prose.
type Rendering struct {
	client inference.Client
}

// NewRendering creates a rendering processor backed by the given client.
func NewRendering(client inference.Client) *Rendering {
	return &Rendering{client: client}
}

var _ Processor = (*Rendering)(nil)

// Kind implements Processor.
func (p *Rendering) Kind() domain.ProcessorKind {
	return domain.ProcessorRendering
}

// ValidatePayload implements Processor.
func (p *Rendering) ValidatePayload(payload json.RawMessage) error {
	var parsed renderingPayload
	return decodePayload(payload, &parsed)
}

// Discriminators implements Processor. The data map is re-marshaled
// through canonicalData so key order in the submission does not split
// the cache.
func (p *Rendering) Discriminators(payload json.RawMessage) (fingerprint.Discriminators, error) {
	var parsed renderingPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	data, err := canonicalData(parsed.Data)
	if err != nil {
		return nil, err
	}

	return fingerprint.Discriminators{
		"template": parsed.Template,
		"data":     data,
		"tone":     parsed.Tone,
	}, nil
}

// canonicalData serializes the data map with sorted keys.
// encoding/json sorts map keys on marshal, which is exactly the
// canonical form the fingerprint needs.
func canonicalData(data map[string]json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: malformed data map: %v", domain.ErrValidation, err)
	}
	return string(raw), nil
}

// Execute implements Processor.
func (p *Rendering) Execute(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed renderingPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	data, err := canonicalData(parsed.Data)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Render the following template into finished text, substituting values from the data.\n"+
			"Reply with only the rendered text.\n\nTemplate:\n%s\n\nData:\n%s",
		parsed.Template, data,
	)
	if parsed.Tone != "" {
		prompt += fmt.Sprintf("\n\nUse a %s tone.", parsed.Tone)
	}

	resp, err := p.client.Generate(ctx, inference.Request{
		Prompt:  prompt,
		Purpose: string(p.Kind()),
	})
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(renderingResult{Rendered: stripFences(resp.Text)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rendering result: %w", err)
	}

	return &Result{
		Output: output,
		Usage:  singleUseSummary(p.Kind(), resp),
	}, nil
}
