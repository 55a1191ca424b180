package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/inference"
)

// translationPayload is the submission payload for translation jobs.
type translationPayload struct {
	Text           string `json:"text"            validate:"required"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language" validate:"required"`
}

// translationResult is the result document for translation jobs.
type translationResult struct {
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

// Translation translates text between languages.
type Translation struct {
	client inference.Client
}

// NewTranslation creates a translation processor backed by the given client.
func NewTranslation(client inference.Client) *Translation {
	return &Translation{client: client}
}

var _ Processor = (*Translation)(nil)

// Kind implements Processor.
func (p *Translation) Kind() domain.ProcessorKind {
	return domain.ProcessorTranslation
}

// ValidatePayload implements Processor.
func (p *Translation) ValidatePayload(payload json.RawMessage) error {
	var parsed translationPayload
	return decodePayload(payload, &parsed)
}

// Discriminators implements Processor. The text and the language pair
// fully determine the output.
func (p *Translation) Discriminators(payload json.RawMessage) (fingerprint.Discriminators, error) {
	var parsed translationPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}
	return fingerprint.Discriminators{
		"text":            parsed.Text,
		"source_language": parsed.SourceLanguage,
		"target_language": parsed.TargetLanguage,
	}, nil
}

// Execute implements Processor.
func (p *Translation) Execute(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed translationPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	source := parsed.SourceLanguage
	if source == "" {
		source = "the source language, detected automatically"
	}
	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. Reply with only the translated text, no commentary.\n\n%s",
		source, parsed.TargetLanguage, parsed.Text,
	)

	resp, err := p.client.Generate(ctx, inference.Request{
		Prompt:  prompt,
		Purpose: string(p.Kind()),
	})
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(translationResult{
		TranslatedText: stripFences(resp.Text),
		SourceLanguage: parsed.SourceLanguage,
		TargetLanguage: parsed.TargetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal translation result: %w", err)
	}

	return &Result{
		Output: output,
		Usage:  singleUseSummary(p.Kind(), resp),
	}, nil
}
