package operation

import (
	"context"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/processor"
)

// ProcessorOperation is the base of the pipeline: it resolves the job's
// processor, derives the fingerprint and executes a single attempt.
type ProcessorOperation struct {
	registry *processor.Registry
}

// NewProcessorOperation creates the base operation over the given registry.
func NewProcessorOperation(registry *processor.Registry) *ProcessorOperation {
	return &ProcessorOperation{registry: registry}
}

var _ Operation = (*ProcessorOperation)(nil)

// Invoke implements Operation.
func (o *ProcessorOperation) Invoke(ctx context.Context, job *domain.Job) (*Outcome, error) {
	proc, err := o.registry.Get(job.ProcessorKind)
	if err != nil {
		return nil, err
	}

	fp := job.Fingerprint
	if fp == "" {
		disc, err := proc.Discriminators(job.Payload)
		if err != nil {
			return nil, err
		}
		fp = fingerprint.Derive(job.ProcessorKind, disc)
	}

	result, err := proc.Execute(ctx, job.Payload)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Result:      result.Output,
		Usage:       result.Usage,
		Fingerprint: fp,
		Attempts:    1,
	}, nil
}
