package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// CompletionParams carries everything a worker finalizes a successful job
// with.
type CompletionParams struct {
	Result      json.RawMessage
	Usage       *usage.Summary
	Fingerprint string
	Attempts    int
	FromCache   bool
}

// FailureParams carries everything a worker finalizes a failed job with.
type FailureParams struct {
	ErrorMessage string
	Fingerprint  string
	Attempts     int
}

// JobStore persists jobs and owns their lifecycle state. The store is the
// sole source of truth for status; mutations keyed by a single job ID are
// atomic with respect to that key.
type JobStore interface {
	// CreateJob persists a new pending job.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by its ID.
	// Returns ErrJobNotFound if it does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListJobsByBatch returns the member jobs of a batch ordered by
	// submission time.
	ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.Job, error)

	// ClaimJob atomically selects the oldest pending job and transitions it
	// to processing. Two concurrent callers can never claim the same job.
	// Returns ErrNoPendingJobs when nothing is pending.
	ClaimJob(ctx context.Context) (*domain.Job, error)

	// CompleteJob transitions a processing job to completed.
	// Returns ErrAlreadyTerminal if the job already reached a terminal state.
	CompleteJob(ctx context.Context, id uuid.UUID, params CompletionParams) (*domain.Job, error)

	// FailJob transitions a processing job to failed with the captured error.
	// Returns ErrAlreadyTerminal if the job already reached a terminal state.
	FailJob(ctx context.Context, id uuid.UUID, params FailureParams) (*domain.Job, error)

	// CancelJob cancels a job that has not been claimed yet.
	// Returns ErrNotPending once the job is claimed or terminal.
	CancelJob(ctx context.Context, id uuid.UUID) error

	// MarkJobWebhookDelivered sets the job webhook's delivered flag.
	// The flag is set at most once; subsequent calls are no-ops.
	MarkJobWebhookDelivered(ctx context.Context, id uuid.UUID) error

	// WithTx returns a JobStore bound to the given transaction, for use
	// with RunInTransaction. Implementations without transactions return
	// themselves.
	WithTx(tx *sql.Tx) JobStore

	// DB exposes the underlying connection pool for RunInTransaction, or
	// nil when the implementation has no database.
	DB() *sql.DB
}
