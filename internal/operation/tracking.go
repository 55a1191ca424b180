package operation

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// TrackingOperation records what an invocation cost. It guarantees every
// successful outcome carries a usage summary, even an empty one, and
// emits one structured log line per invocation.
type TrackingOperation struct {
	inner  Operation
	logger *slog.Logger
}

// NewTrackingOperation wraps inner with usage tracking.
func NewTrackingOperation(inner Operation, logger *slog.Logger) *TrackingOperation {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackingOperation{
		inner:  inner,
		logger: logger.With(slog.String("component", "tracking_operation")),
	}
}

var _ Operation = (*TrackingOperation)(nil)

// Invoke implements Operation.
func (o *TrackingOperation) Invoke(ctx context.Context, job *domain.Job) (*Outcome, error) {
	start := time.Now()
	outcome, err := o.inner.Invoke(ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		o.logger.InfoContext(ctx, "job execution failed",
			slog.String("job_id", job.ID.String()),
			slog.String("processor_kind", string(job.ProcessorKind)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	if outcome.Usage == nil {
		outcome.Usage = usage.NewSummary()
	}

	o.logger.InfoContext(ctx, "job execution finished",
		slog.String("job_id", job.ID.String()),
		slog.String("processor_kind", string(job.ProcessorKind)),
		slog.Bool("from_cache", outcome.FromCache),
		slog.Int("attempts", outcome.Attempts),
		slog.Int("tokens", outcome.Usage.TotalTokens()),
		slog.String("model", outcome.Usage.Model()),
		slog.Duration("elapsed", elapsed))

	return outcome, nil
}
