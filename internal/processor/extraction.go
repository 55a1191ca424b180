package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/inference"
)

// extractionPayload is the submission payload for extraction jobs.
type extractionPayload struct {
	Document string   `json:"document" validate:"required"`
	Fields   []string `json:"fields"   validate:"required,min=1,dive,required"`
}

// Extraction pulls structured fields out of free-form documents. The
// result document is the JSON object returned by the model, keyed by the
// requested field names.
type Extraction struct {
	client inference.Client
}

// NewExtraction creates an extraction processor backed by the given client.
func NewExtraction(client inference.Client) *Extraction {
	return &Extraction{client: client}
}

var _ Processor = (*Extraction)(nil)

// Kind implements Processor.
func (p *Extraction) Kind() domain.ProcessorKind {
	return domain.ProcessorExtraction
}

// ValidatePayload implements Processor.
func (p *Extraction) ValidatePayload(payload json.RawMessage) error {
	var parsed extractionPayload
	return decodePayload(payload, &parsed)
}

// Discriminators implements Processor. Field order does not change the
// output, so the field list is sorted before joining.
func (p *Extraction) Discriminators(payload json.RawMessage) (fingerprint.Discriminators, error) {
	var parsed extractionPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	fields := make([]string, len(parsed.Fields))
	copy(fields, parsed.Fields)
	sort.Strings(fields)

	return fingerprint.Discriminators{
		"document": parsed.Document,
		"fields":   strings.Join(fields, ","),
	}, nil
}

// Execute implements Processor.
func (p *Extraction) Execute(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed extractionPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Extract the following fields from the document below: %s.\n"+
			"Reply with a single JSON object whose keys are exactly the field names. "+
			"Use null for fields that are absent.\n\nDocument:\n%s",
		strings.Join(parsed.Fields, ", "), parsed.Document,
	)

	resp, err := p.client.Generate(ctx, inference.Request{
		Prompt:  prompt,
		Purpose: string(p.Kind()),
	})
	if err != nil {
		return nil, err
	}

	// The model must return a JSON object; anything else is a permanent
	// failure since retrying the same prompt yields the same shape.
	text := stripFences(resp.Text)
	var extracted map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &extracted); err != nil {
		return nil, fmt.Errorf("%w: failed to parse extraction reply: %v", inference.ErrInvalidResponse, err)
	}

	output, err := json.Marshal(extracted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction result: %w", err)
	}

	return &Result{
		Output: output,
		Usage:  singleUseSummary(p.Kind(), resp),
	}, nil
}
