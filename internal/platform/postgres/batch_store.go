package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/store"
)

// PostgresBatchStore implements the store.BatchStore interface
// using a PostgreSQL database as the storage backend.
type PostgresBatchStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBatchStore creates a new PostgreSQL implementation of the BatchStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresBatchStore(db store.DBTX, logger *slog.Logger) *PostgresBatchStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBatchStore{
		db:     db,
		logger: logger.With(slog.String("component", "batch_store")),
	}
}

var _ store.BatchStore = (*PostgresBatchStore)(nil)

// WithTxBatchStore returns a BatchStore running its statements on the
// given transaction.
func (s *PostgresBatchStore) WithTxBatchStore(tx *sql.Tx) store.BatchStore {
	return &PostgresBatchStore{
		db:     tx,
		logger: s.logger,
	}
}

// DB returns the underlying connection pool, or nil when the store is
// already bound to a transaction.
func (s *PostgresBatchStore) DB() *sql.DB {
	if db, ok := s.db.(*sql.DB); ok {
		return db
	}
	return nil
}

// CreateBatch implements store.BatchStore.CreateBatch
// Membership is stored as a JSONB array and is immutable after creation.
func (s *PostgresBatchStore) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	jobIDs, err := json.Marshal(batch.JobIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal batch members: %w", err)
	}

	webhookRaw, err := marshalWebhook(batch.Webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook config: %w", err)
	}

	query := `
		INSERT INTO batches (id, job_ids, webhook, webhook_delivered, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		batch.ID,
		jobIDs,
		webhookRaw,
		false,
		batch.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to create batch",
			slog.String("batch_id", batch.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

// GetBatch implements store.BatchStore.GetBatch
// Returns store.ErrBatchNotFound if the batch does not exist.
func (s *PostgresBatchStore) GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `
		SELECT id, job_ids, webhook, webhook_delivered, webhook_delivered_at,
			created_at, settled_at
		FROM batches
		WHERE id = $1
	`

	var (
		batch              domain.Batch
		jobIDsRaw          []byte
		webhookRaw         []byte
		webhookDelivered   bool
		webhookDeliveredAt sql.NullTime
		settledAt          sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&jobIDsRaw,
		&webhookRaw,
		&webhookDelivered,
		&webhookDeliveredAt,
		&batch.CreatedAt,
		&settledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBatchNotFound
		}
		s.logger.Error("failed to get batch",
			slog.String("batch_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	if err := json.Unmarshal(jobIDsRaw, &batch.JobIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch members: %w", err)
	}

	var deliveredAt *time.Time
	if webhookDeliveredAt.Valid {
		t := webhookDeliveredAt.Time.UTC()
		deliveredAt = &t
	}
	batch.Webhook, err = unmarshalWebhook(webhookRaw, webhookDelivered, deliveredAt)
	if err != nil {
		return nil, err
	}

	batch.CreatedAt = batch.CreatedAt.UTC()
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		batch.SettledAt = &t
	}

	return &batch, nil
}

// SettleBatch implements store.BatchStore.SettleBatch
// The IS NULL guard lets exactly one concurrent caller win the settlement.
func (s *PostgresBatchStore) SettleBatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE batches
		SET settled_at = $1
		WHERE id = $2 AND settled_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		s.logger.Error("failed to settle batch",
			slog.String("batch_id", id.String()),
			slog.String("error", err.Error()))
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, MapError(err)
	}
	if !exists {
		return false, store.ErrBatchNotFound
	}
	return false, nil
}

// MarkBatchWebhookDelivered implements store.BatchStore.MarkBatchWebhookDelivered
func (s *PostgresBatchStore) MarkBatchWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE batches
		SET webhook_delivered = TRUE, webhook_delivered_at = $1
		WHERE id = $2 AND webhook IS NOT NULL AND webhook_delivered = FALSE
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		s.logger.Error("failed to mark batch webhook delivered",
			slog.String("batch_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrBatchNotFound
		}
	}

	return nil
}
