package operation

import (
	"context"
	"log/slog"

	"github.com/lexfold/alchemy-api/internal/cache"
	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
	"github.com/lexfold/alchemy-api/internal/processor"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// CachingOperation serves results from the fingerprint cache and fills
// it after successful executions. A cache hit short-circuits the inner
// operation entirely: the job completes with zero usage.
//
// The cache is an availability optimization, never a correctness
// dependency. An unreachable cache degrades to a forced miss and a
// failed fill is logged and dropped.
type CachingOperation struct {
	inner    Operation
	registry *processor.Registry
	cache    cache.ResultCache
	logger   *slog.Logger
}

// NewCachingOperation wraps inner with fingerprint cache checks.
func NewCachingOperation(inner Operation, registry *processor.Registry, c cache.ResultCache, logger *slog.Logger) *CachingOperation {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingOperation{
		inner:    inner,
		registry: registry,
		cache:    c,
		logger:   logger.With(slog.String("component", "caching_operation")),
	}
}

var _ Operation = (*CachingOperation)(nil)

// Invoke implements Operation.
func (o *CachingOperation) Invoke(ctx context.Context, job *domain.Job) (*Outcome, error) {
	proc, err := o.registry.Get(job.ProcessorKind)
	if err != nil {
		return nil, err
	}

	disc, err := proc.Discriminators(job.Payload)
	if err != nil {
		return nil, err
	}
	fp := fingerprint.Derive(job.ProcessorKind, disc)

	entry, found, err := o.cache.Get(ctx, fp)
	if err != nil {
		o.logger.WarnContext(ctx, "cache lookup failed, treating as miss",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
	if found {
		o.logger.DebugContext(ctx, "cache hit",
			slog.String("job_id", job.ID.String()),
			slog.String("fingerprint", fp))
		return &Outcome{
			Result:      entry.Value,
			Usage:       usage.NewSummary(),
			Fingerprint: fp,
			FromCache:   true,
			Attempts:    0,
		}, nil
	}

	// Hand the derived fingerprint down so the base operation does not
	// decode and hash the discriminators a second time.
	job.Fingerprint = fp

	outcome, err := o.inner.Invoke(ctx, job)
	if err != nil {
		return nil, err
	}
	outcome.Fingerprint = fp

	if err := o.cache.Put(ctx, fp, outcome.Result, map[string]string{
		"processor_kind": string(job.ProcessorKind),
	}); err != nil {
		// The job already succeeded; a failed fill only costs a future miss.
		o.logger.WarnContext(ctx, "cache fill failed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}

	return outcome, nil
}
