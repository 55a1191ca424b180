package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/domain"
)

// BatchStore persists batches and their settlement state.
type BatchStore interface {
	// CreateBatch persists a new batch. Membership is immutable afterwards.
	CreateBatch(ctx context.Context, batch *domain.Batch) error

	// GetBatch retrieves a batch by its ID.
	// Returns ErrBatchNotFound if it does not exist.
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error)

	// SettleBatch sets settled_at if it is not set yet. Returns true when
	// this call won the settlement (exactly one caller observes true).
	SettleBatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// MarkBatchWebhookDelivered sets the batch webhook's delivered flag.
	MarkBatchWebhookDelivered(ctx context.Context, id uuid.UUID) error

	// WithTxBatchStore returns a BatchStore bound to the given transaction,
	// for use with RunInTransaction. The name differs from JobStore.WithTx
	// so one type can implement both interfaces. Implementations without
	// transactions return themselves.
	WithTxBatchStore(tx *sql.Tx) BatchStore

	// DB exposes the underlying connection pool for RunInTransaction, or
	// nil when the implementation has no database.
	DB() *sql.DB
}
