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
	"github.com/lexfold/alchemy-api/internal/usage"
)

// jobColumns is the select list shared by every job query so all scan
// paths stay in sync.
const jobColumns = `id, batch_id, processor_kind, payload, fingerprint, status,
	result, error_message, attempt_count, is_from_cache, usage, webhook,
	webhook_delivered, webhook_delivered_at, created_at, claimed_at, completed_at`

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx returns a JobStore running its statements on the given
// transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

// DB returns the underlying connection pool, or nil when the store is
// already bound to a transaction.
func (s *PostgresJobStore) DB() *sql.DB {
	if db, ok := s.db.(*sql.DB); ok {
		return db
	}
	return nil
}

// webhookColumn is the persisted shape of a webhook configuration. The
// delivered flag and its timestamp live in dedicated columns so delivery
// can be flipped without rewriting the config document.
type webhookColumn struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	IncludeResult  bool              `json:"include_result"`
	IncludePayload bool              `json:"include_payload"`
}

func marshalWebhook(cfg *domain.WebhookConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(webhookColumn{
		URL:            cfg.URL,
		Headers:        cfg.Headers,
		IncludeResult:  cfg.IncludeResult,
		IncludePayload: cfg.IncludePayload,
	})
}

func unmarshalWebhook(raw []byte, delivered bool, deliveredAt *time.Time) (*domain.WebhookConfig, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var col webhookColumn
	if err := json.Unmarshal(raw, &col); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook config: %w", err)
	}
	return &domain.WebhookConfig{
		URL:            col.URL,
		Headers:        col.Headers,
		IncludeResult:  col.IncludeResult,
		IncludePayload: col.IncludePayload,
		Delivered:      delivered,
		DeliveredAt:    deliveredAt,
	}, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan path.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                domain.Job
		batchID            uuid.NullUUID
		fingerprint        sql.NullString
		result             []byte
		errorMessage       sql.NullString
		usageRaw           []byte
		webhookRaw         []byte
		webhookDelivered   bool
		webhookDeliveredAt sql.NullTime
		claimedAt          sql.NullTime
		completedAt        sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&batchID,
		&job.ProcessorKind,
		(*[]byte)(&job.Payload),
		&fingerprint,
		&job.Status,
		&result,
		&errorMessage,
		&job.AttemptCount,
		&job.IsFromCache,
		&usageRaw,
		&webhookRaw,
		&webhookDelivered,
		&webhookDeliveredAt,
		&job.CreatedAt,
		&claimedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if batchID.Valid {
		job.BatchID = &batchID.UUID
	}
	job.Fingerprint = fingerprint.String
	job.Result = result
	job.ErrorMessage = errorMessage.String
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		job.ClaimedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	job.CreatedAt = job.CreatedAt.UTC()

	if len(usageRaw) > 0 {
		summary := &usage.Summary{}
		if err := summary.UnmarshalJSON(usageRaw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage summary: %w", err)
		}
		job.Usage = summary
	}

	var deliveredAt *time.Time
	if webhookDeliveredAt.Valid {
		t := webhookDeliveredAt.Time.UTC()
		deliveredAt = &t
	}
	job.Webhook, err = unmarshalWebhook(webhookRaw, webhookDelivered, deliveredAt)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// CreateJob implements store.JobStore.CreateJob
// It inserts a new pending job. Returns store.ErrDuplicate if a job
// with the same ID already exists.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	webhookRaw, err := marshalWebhook(job.Webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook config: %w", err)
	}

	query := `
		INSERT INTO jobs (id, batch_id, processor_kind, payload, status,
			attempt_count, is_from_cache, webhook, webhook_delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		uuid.NullUUID{UUID: deref(job.BatchID), Valid: job.BatchID != nil},
		job.ProcessorKind,
		[]byte(job.Payload),
		job.Status,
		job.AttemptCount,
		job.IsFromCache,
		webhookRaw,
		false,
		job.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to create job",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// GetJob implements store.JobStore.GetJob
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		s.logger.Error("failed to get job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return job, nil
}

// ListJobsByBatch implements store.JobStore.ListJobsByBatch
func (s *PostgresJobStore) ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE batch_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		s.logger.Error("failed to list batch jobs",
			slog.String("batch_id", batchID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

// ClaimJob implements store.JobStore.ClaimJob
// The FOR UPDATE SKIP LOCKED subquery makes the select-and-transition
// atomic across concurrent workers: a row locked by one claimer is
// skipped by all others, so no job is ever claimed twice.
func (s *PostgresJobStore) ClaimJob(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, claimed_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $3
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusProcessing,
		time.Now().UTC(),
		domain.JobStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoPendingJobs
		}
		s.logger.Error("failed to claim job", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return job, nil
}

// CompleteJob implements store.JobStore.CompleteJob
// The status guard in the WHERE clause keeps terminal states immutable:
// the update only lands while the job is still processing.
func (s *PostgresJobStore) CompleteJob(ctx context.Context, id uuid.UUID, params store.CompletionParams) (*domain.Job, error) {
	var usageRaw []byte
	if params.Usage != nil {
		raw, err := params.Usage.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal usage summary: %w", err)
		}
		usageRaw = raw
	}

	query := `
		UPDATE jobs
		SET status = $1,
			result = $2,
			usage = $3,
			fingerprint = COALESCE(NULLIF(fingerprint, ''), $4),
			attempt_count = $5,
			is_from_cache = $6,
			completed_at = $7
		WHERE id = $8 AND status = $9
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusCompleted,
		[]byte(params.Result),
		usageRaw,
		params.Fingerprint,
		params.Attempts,
		params.FromCache,
		time.Now().UTC(),
		id,
		domain.JobStatusProcessing,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id)
		}
		s.logger.Error("failed to complete job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return job, nil
}

// FailJob implements store.JobStore.FailJob
func (s *PostgresJobStore) FailJob(ctx context.Context, id uuid.UUID, params store.FailureParams) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
			error_message = $2,
			fingerprint = COALESCE(NULLIF(fingerprint, ''), $3),
			attempt_count = $4,
			completed_at = $5
		WHERE id = $6 AND status = $7
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusFailed,
		params.ErrorMessage,
		params.Fingerprint,
		params.Attempts,
		time.Now().UTC(),
		id,
		domain.JobStatusProcessing,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedUpdate(ctx, id)
		}
		s.logger.Error("failed to mark job failed",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return job, nil
}

// classifyMissedUpdate distinguishes why a guarded status update matched
// no rows: the job is missing, already terminal, or not yet claimed.
func (s *PostgresJobStore) classifyMissedUpdate(ctx context.Context, id uuid.UUID) error {
	var status domain.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrJobNotFound
		}
		return MapError(err)
	}
	if status.IsTerminal() {
		return store.ErrAlreadyTerminal
	}
	return fmt.Errorf("%w: job is %s, not processing", domain.ErrInvalidTransition, status)
}

// CancelJob implements store.JobStore.CancelJob
// Only pending jobs are cancellable; a claimed job runs to completion.
func (s *PostgresJobStore) CancelJob(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCancelled,
		time.Now().UTC(),
		id,
		domain.JobStatusPending,
	)
	if err != nil {
		s.logger.Error("failed to cancel job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrJobNotFound
		}
		return store.ErrNotPending
	}

	return nil
}

// MarkJobWebhookDelivered implements store.JobStore.MarkJobWebhookDelivered
// The delivered guard makes the flip idempotent; repeat calls match no rows.
func (s *PostgresJobStore) MarkJobWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET webhook_delivered = TRUE, webhook_delivered_at = $1
		WHERE id = $2 AND webhook IS NOT NULL AND webhook_delivered = FALSE
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		s.logger.Error("failed to mark job webhook delivered",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrJobNotFound
		}
	}

	return nil
}
