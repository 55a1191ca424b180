package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/domain"
)

// MemoryStore is an in-process JobStore and BatchStore with document-store
// semantics. It backs tests and local development; the Postgres
// implementations provide the same contract for production.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]domain.Job
	order   []uuid.UUID // submission order, drives FIFO claiming
	batches map[uuid.UUID]domain.Batch
}

var (
	_ JobStore   = (*MemoryStore)(nil)
	_ BatchStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]domain.Job),
		batches: make(map[uuid.UUID]domain.Batch),
	}
}

// WithTx returns the store itself: every mutation already happens under
// one mutex, so there is no transaction to bind to.
func (s *MemoryStore) WithTx(tx *sql.Tx) JobStore {
	return s
}

// WithTxBatchStore returns the store itself; see WithTx.
func (s *MemoryStore) WithTxBatchStore(tx *sql.Tx) BatchStore {
	return s
}

// DB returns nil; the memory store has no database.
func (s *MemoryStore) DB() *sql.DB {
	return nil
}

// CreateJob persists a new pending job.
func (s *MemoryStore) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicate
	}

	s.jobs[job.ID] = *job
	s.order = append(s.order, job.ID)
	return nil
}

// GetJob retrieves a job by its ID.
func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := job
	return &out, nil
}

// ListJobsByBatch returns the member jobs of a batch ordered by submission
// time.
func (s *MemoryStore) ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*domain.Job
	for _, job := range s.jobs {
		if job.BatchID != nil && *job.BatchID == batchID {
			out := job
			jobs = append(jobs, &out)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// ClaimJob atomically claims the oldest pending job. The single store
// mutex makes the select-and-transition a unit, so two concurrent callers
// can never claim the same job.
func (s *MemoryStore) ClaimJob(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != domain.JobStatusPending {
			continue
		}

		claimed, err := job.WithClaim(time.Now().UTC())
		if err != nil {
			return nil, err
		}
		s.jobs[id] = claimed
		out := claimed
		return &out, nil
	}

	return nil, ErrNoPendingJobs
}

// CompleteJob transitions a processing job to completed.
func (s *MemoryStore) CompleteJob(ctx context.Context, id uuid.UUID, params CompletionParams) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}

	next, err := job.WithFingerprint(params.Fingerprint)
	if err != nil {
		return nil, err
	}
	next, err = next.WithCompletion(params.Result, params.Attempts, params.FromCache, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	next = next.WithUsage(params.Usage)

	s.jobs[id] = next
	out := next
	return &out, nil
}

// FailJob transitions a processing job to failed.
func (s *MemoryStore) FailJob(ctx context.Context, id uuid.UUID, params FailureParams) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}

	next, err := job.WithFingerprint(params.Fingerprint)
	if err != nil {
		return nil, err
	}
	next, err = next.WithFailure(params.ErrorMessage, params.Attempts, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.jobs[id] = next
	out := next
	return &out, nil
}

// CancelJob cancels a job that has not been claimed yet.
func (s *MemoryStore) CancelJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return ErrNotPending
	}

	cancelled, err := job.WithCancellation(time.Now().UTC())
	if err != nil {
		return err
	}
	s.jobs[id] = cancelled
	return nil
}

// MarkJobWebhookDelivered sets the job webhook's delivered flag at most once.
func (s *MemoryStore) MarkJobWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Webhook == nil || job.Webhook.Delivered {
		return nil
	}

	now := time.Now().UTC()
	webhook := *job.Webhook
	webhook.Delivered = true
	webhook.DeliveredAt = &now
	job.Webhook = &webhook
	s.jobs[id] = job
	return nil
}

// CreateBatch persists a new batch.
func (s *MemoryStore) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return ErrDuplicate
	}
	s.batches[batch.ID] = *batch
	return nil
}

// GetBatch retrieves a batch by its ID.
func (s *MemoryStore) GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	out := batch
	return &out, nil
}

// SettleBatch sets settled_at if it is not set yet.
func (s *MemoryStore) SettleBatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return false, ErrBatchNotFound
	}
	if batch.SettledAt != nil {
		return false, nil
	}

	settledAt := at
	batch.SettledAt = &settledAt
	s.batches[id] = batch
	return true, nil
}

// MarkBatchWebhookDelivered sets the batch webhook's delivered flag at
// most once.
func (s *MemoryStore) MarkBatchWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	if batch.Webhook == nil || batch.Webhook.Delivered {
		return nil
	}

	now := time.Now().UTC()
	webhook := *batch.Webhook
	webhook.Delivered = true
	webhook.DeliveredAt = &now
	batch.Webhook = &webhook
	s.batches[id] = batch
	return nil
}
