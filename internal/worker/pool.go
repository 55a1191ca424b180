// Package worker runs the claim-and-process loop that drains the job
// store. A single dispatcher goroutine claims jobs in submission order
// and hands each one to a processing goroutine; a shared counting permit
// bounds how many jobs are in flight at once.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/operation"
	"github.com/lexfold/alchemy-api/internal/store"
)

// JobNotifier delivers the per-job settlement callback.
type JobNotifier interface {
	DispatchJob(ctx context.Context, job *domain.Job) error
}

// Settler reacts to a job reaching a terminal state, typically to check
// whether its batch is now complete.
type Settler interface {
	OnJobSettled(ctx context.Context, job *domain.Job)
}

// Config holds pool tuning knobs.
type Config struct {
	// PollInterval is how long the claim loop sleeps when the store has
	// no pending jobs.
	PollInterval time.Duration
}

// Pool claims pending jobs and runs them through the operation pipeline.
// The permit is injected rather than owned: several pools sharing one
// permit share one concurrency budget.
type Pool struct {
	jobs     store.JobStore
	op       operation.Operation
	permit   *semaphore.Weighted
	notifier JobNotifier
	settler  Settler
	config   Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. notifier and settler may be nil.
func NewPool(
	jobs store.JobStore,
	op operation.Operation,
	permit *semaphore.Weighted,
	config Config,
	notifier JobNotifier,
	settler Settler,
	logger *slog.Logger,
) *Pool {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:     jobs,
		op:       op,
		permit:   permit,
		notifier: notifier,
		settler:  settler,
		config:   config,
		logger:   logger.With(slog.String("component", "worker_pool")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the claim loop.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop shuts the pool down gracefully: claiming stops immediately and
// Stop blocks until every in-flight job has settled.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// run is the claim loop. It holds a permit before claiming so a job is
// only taken off the queue when a processing slot exists for it.
func (p *Pool) run() {
	defer p.wg.Done()

	for {
		if err := p.permit.Acquire(p.ctx, 1); err != nil {
			return
		}

		job, err := p.jobs.ClaimJob(p.ctx)
		if err != nil {
			p.permit.Release(1)
			if errors.Is(err, store.ErrNoPendingJobs) {
				if !p.sleep(p.config.PollInterval) {
					return
				}
				continue
			}
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Error("failed to claim job", slog.String("error", err.Error()))
			if !p.sleep(p.config.PollInterval) {
				return
			}
			continue
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.permit.Release(1)
			p.process(job)
		}()
	}
}

// sleep waits for the poll interval. Returns false if the pool stopped.
func (p *Pool) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-p.ctx.Done():
		return false
	}
}

// process runs one claimed job to a terminal state. It deliberately uses
// a background context: a claimed job finishes even while the pool is
// shutting down, so no job is left stuck in processing.
func (p *Pool) process(job *domain.Job) {
	ctx := context.Background()

	outcome, err := p.op.Invoke(ctx, job)
	if err != nil {
		p.fail(ctx, job, err)
		return
	}

	completed, err := p.jobs.CompleteJob(ctx, job.ID, store.CompletionParams{
		Result:      outcome.Result,
		Usage:       outcome.Usage,
		Fingerprint: outcome.Fingerprint,
		Attempts:    outcome.Attempts,
		FromCache:   outcome.FromCache,
	})
	if err != nil {
		p.logger.Error("failed to persist job completion",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	p.logger.Info("job completed",
		slog.String("job_id", completed.ID.String()),
		slog.String("processor_kind", string(completed.ProcessorKind)),
		slog.Bool("from_cache", completed.IsFromCache),
		slog.Int("attempts", completed.AttemptCount))

	p.settle(ctx, completed)
}

// fail records a terminal failure and fires the settlement hooks.
func (p *Pool) fail(ctx context.Context, job *domain.Job, cause error) {
	failed, err := p.jobs.FailJob(ctx, job.ID, store.FailureParams{
		ErrorMessage: cause.Error(),
		Attempts:     operation.AttemptCount(cause),
	})
	if err != nil {
		p.logger.Error("failed to persist job failure",
			slog.String("job_id", job.ID.String()),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return
	}

	p.logger.Warn("job failed",
		slog.String("job_id", failed.ID.String()),
		slog.String("processor_kind", string(failed.ProcessorKind)),
		slog.Int("attempts", failed.AttemptCount),
		slog.String("error", failed.ErrorMessage))

	p.settle(ctx, failed)
}

// settle fires the best-effort post-settlement hooks. Neither hook may
// alter the job's terminal state.
func (p *Pool) settle(ctx context.Context, job *domain.Job) {
	if p.notifier != nil {
		if err := p.notifier.DispatchJob(ctx, job); err != nil {
			p.logger.Warn("job callback delivery failed",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	if p.settler != nil {
		p.settler.OnJobSettled(ctx, job)
	}
}
