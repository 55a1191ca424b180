// Package batch settles groups of jobs submitted together. A batch is a
// grouping construct only: members run independently and a member's
// failure never touches its siblings. Settlement is the one collective
// event, fired when the last member reaches a terminal state.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/store"
)

// Notifier delivers the batch settlement callback.
type Notifier interface {
	DispatchBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error
}

// Coordinator watches job settlements and settles batches exactly once.
type Coordinator struct {
	jobs     store.JobStore
	batches  store.BatchStore
	notifier Notifier
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator. The notifier may be nil when no
// callbacks are wanted.
func NewCoordinator(jobs store.JobStore, batches store.BatchStore, notifier Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		jobs:     jobs,
		batches:  batches,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "batch_coordinator")),
	}
}

// OnJobSettled reacts to one job reaching a terminal state. If the job
// belongs to a batch and it was the last open member, the batch settles.
// The store's settle-once guard keeps concurrent settlements of sibling
// jobs from double-firing the batch callback.
func (c *Coordinator) OnJobSettled(ctx context.Context, job *domain.Job) {
	if job.BatchID == nil {
		return
	}
	batchID := *job.BatchID

	members, err := c.jobs.ListJobsByBatch(ctx, batchID)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to list batch members",
			slog.String("batch_id", batchID.String()),
			slog.String("error", err.Error()))
		return
	}

	summary := domain.SummarizeJobs(members)
	if summary.Pending > 0 {
		return
	}

	won, err := c.batches.SettleBatch(ctx, batchID, time.Now().UTC())
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to settle batch",
			slog.String("batch_id", batchID.String()),
			slog.String("error", err.Error()))
		return
	}
	if !won {
		return
	}

	c.logger.InfoContext(ctx, "batch settled",
		slog.String("batch_id", batchID.String()),
		slog.Int("total", summary.Total),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))

	if c.notifier == nil {
		return
	}
	batch, err := c.batches.GetBatch(ctx, batchID)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to load settled batch",
			slog.String("batch_id", batchID.String()),
			slog.String("error", err.Error()))
		return
	}
	if err := c.notifier.DispatchBatch(ctx, batch, members); err != nil {
		// Best-effort: the settlement already happened and stays visible
		// to polling regardless of callback delivery.
		c.logger.WarnContext(ctx, "batch callback delivery failed",
			slog.String("batch_id", batchID.String()),
			slog.String("error", err.Error()))
	}
}
