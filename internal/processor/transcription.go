package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/inference"
)

// transcriptionPayload is the submission payload for transcription jobs.
type transcriptionPayload struct {
	MediaURL string `json:"media_url" validate:"required,url"`
	Language string `json:"language"`
}

// transcriptionResult is the result document for transcription jobs.
type transcriptionResult struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language,omitempty"`
}

// Transcription produces a transcript for a piece of hosted media.
type Transcription struct {
	client inference.Client
}

// NewTranscription creates a transcription processor backed by the given client.
func NewTranscription(client inference.Client) *Transcription {
	return &Transcription{client: client}
}

var _ Processor = (*Transcription)(nil)

// Kind implements Processor.
func (p *Transcription) Kind() domain.ProcessorKind {
	return domain.ProcessorTranscription
}

// ValidatePayload implements Processor.
func (p *Transcription) ValidatePayload(payload json.RawMessage) error {
	var parsed transcriptionPayload
	return decodePayload(payload, &parsed)
}

// Discriminators implements Processor. The media URL identifies the
// content; the language hint changes the transcript.
func (p *Transcription) Discriminators(payload json.RawMessage) (fingerprint.Discriminators, error) {
	var parsed transcriptionPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}
	return fingerprint.Discriminators{
		"media_url": parsed.MediaURL,
		"language":  parsed.Language,
	}, nil
}

// Execute implements Processor.
func (p *Transcription) Execute(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var parsed transcriptionPayload
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Transcribe the media at the following URL verbatim. Reply with only the transcript text.\nURL: %s",
		parsed.MediaURL,
	)
	if parsed.Language != "" {
		prompt += fmt.Sprintf("\nThe spoken language is %s.", parsed.Language)
	}

	resp, err := p.client.Generate(ctx, inference.Request{
		Prompt:  prompt,
		Purpose: string(p.Kind()),
	})
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(transcriptionResult{
		Transcript: stripFences(resp.Text),
		Language:   parsed.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcription result: %w", err)
	}

	return &Result{
		Output: output,
		Usage:  singleUseSummary(p.Kind(), resp),
	}, nil
}
