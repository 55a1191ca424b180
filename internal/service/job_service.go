// Package service provides the application-level operations behind the
// API: job submission, batch submission, status reads and cancellation.
// Service methods return sentinel errors from the domain and store
// packages; the API layer maps them to HTTP status codes.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/processor"
	"github.com/lexfold/alchemy-api/internal/store"
)

// JobRequest is one unit of work in a submission.
type JobRequest struct {
	ProcessorKind string
	Payload       json.RawMessage
	Webhook       *domain.WebhookConfig
}

// BatchResult is the outcome of a batch read: the batch record, its
// member jobs and a summary computed live from their current states.
type BatchResult struct {
	Batch   *domain.Batch
	Jobs    []*domain.Job
	Summary domain.BatchSummary
}

// JobNotifier delivers the per-job settlement callback.
type JobNotifier interface {
	DispatchJob(ctx context.Context, job *domain.Job) error
}

// Settler reacts to a job reaching a terminal state, typically to check
// whether its batch is now complete.
type Settler interface {
	OnJobSettled(ctx context.Context, job *domain.Job)
}

// JobService implements submission and lifecycle operations over the
// job and batch stores.
type JobService struct {
	jobs     store.JobStore
	batches  store.BatchStore
	registry *processor.Registry
	notifier JobNotifier
	settler  Settler
	logger   *slog.Logger
}

// NewJobService creates a JobService. notifier and settler may be nil;
// they receive the same settlement hooks the worker pool fires, since
// cancellation is a terminal transition too.
func NewJobService(
	jobs store.JobStore,
	batches store.BatchStore,
	registry *processor.Registry,
	notifier JobNotifier,
	settler Settler,
	logger *slog.Logger,
) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		jobs:     jobs,
		batches:  batches,
		registry: registry,
		notifier: notifier,
		settler:  settler,
		logger:   logger.With(slog.String("component", "job_service")),
	}
}

// SubmitJob validates the request synchronously and persists a pending
// job. Validation failures are rejected here, before the job exists;
// everything that can fail asynchronously fails on the job record instead.
func (s *JobService) SubmitJob(ctx context.Context, req JobRequest) (*domain.Job, error) {
	job, err := s.buildJob(req, nil)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.logger.InfoContext(ctx, "job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("processor_kind", string(job.ProcessorKind)))
	return job, nil
}

// SubmitBatch validates every member request before creating anything,
// so a batch is admitted all-or-nothing. The optional batch webhook
// fires once on settlement; members may carry their own webhooks too.
func (s *JobService) SubmitBatch(ctx context.Context, requests []JobRequest, webhook *domain.WebhookConfig) (*BatchResult, error) {
	if len(requests) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	batchID := uuid.New()
	jobs := make([]*domain.Job, 0, len(requests))
	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		job, err := s.buildJob(req, &batchID)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}

	b, err := domain.NewBatch(ids, webhook)
	if err != nil {
		return nil, err
	}
	b.ID = batchID

	if err := s.persistBatch(ctx, b, jobs); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "batch submitted",
		slog.String("batch_id", b.ID.String()),
		slog.Int("members", len(jobs)))

	return &BatchResult{
		Batch:   b,
		Jobs:    jobs,
		Summary: domain.SummarizeJobs(jobs),
	}, nil
}

// persistBatch writes the batch record and its members. Against a
// database-backed store the writes share one transaction; the memory
// store has no transactions, so members are written sequentially after
// the batch (every member was already validated, so a mid-sequence
// failure is an infrastructure error, not a partial-validation state).
func (s *JobService) persistBatch(ctx context.Context, b *domain.Batch, jobs []*domain.Job) error {
	db := s.batches.DB()
	if db == nil {
		if err := s.batches.CreateBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}
		for _, job := range jobs {
			if err := s.jobs.CreateJob(ctx, job); err != nil {
				return fmt.Errorf("failed to persist batch member: %w", err)
			}
		}
		return nil
	}

	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		batches := s.batches.WithTxBatchStore(tx)
		members := s.jobs.WithTx(tx)

		if err := batches.CreateBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}
		for _, job := range jobs {
			if err := members.CreateJob(ctx, job); err != nil {
				return fmt.Errorf("failed to persist batch member: %w", err)
			}
		}
		return nil
	})
}

// buildJob validates one request and constructs the pending job.
func (s *JobService) buildJob(req JobRequest, batchID *uuid.UUID) (*domain.Job, error) {
	kind, err := domain.ParseProcessorKind(req.ProcessorKind)
	if err != nil {
		return nil, err
	}

	proc, err := s.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if err := proc.ValidatePayload(req.Payload); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(kind, req.Payload, req.Webhook)
	if err != nil {
		return nil, err
	}
	job.BatchID = batchID
	return job, nil
}

// GetJob returns the current state of a job.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// GetBatch returns the batch with its members and a summary computed
// from their live states, whether or not the batch has settled.
func (s *JobService) GetBatch(ctx context.Context, id uuid.UUID) (*BatchResult, error) {
	b, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	jobs, err := s.jobs.ListJobsByBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	return &BatchResult{
		Batch:   b,
		Jobs:    jobs,
		Summary: domain.SummarizeJobs(jobs),
	}, nil
}

// CancelJob cancels a job that is still pending. Claimed jobs run to
// completion; their outcome is simply discarded by the caller.
// Cancellation is a terminal transition, so it fires the same settlement
// hooks a completed or failed job does: the job's webhook is notified and
// the batch coordinator gets a chance to settle the batch.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if err := s.jobs.CancelJob(ctx, id); err != nil {
		return nil, err
	}

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "job cancelled", slog.String("job_id", id.String()))

	if s.notifier != nil {
		if err := s.notifier.DispatchJob(ctx, job); err != nil {
			s.logger.WarnContext(ctx, "job callback delivery failed",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	if s.settler != nil {
		s.settler.OnJobSettled(ctx, job)
	}

	return job, nil
}
