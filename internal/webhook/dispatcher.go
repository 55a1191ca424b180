// Package webhook delivers settlement notifications to caller-supplied
// URLs. Delivery is strictly best-effort: a callback that never arrives
// leaves the job or batch record untouched, polling always works.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lexfold/alchemy-api/internal/config"
	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/store"
)

// Event names sent in the X-Alchemy-Event header.
const (
	eventJobSettled   = "job.settled"
	eventBatchSettled = "batch.settled"
)

// Dispatcher posts settlement payloads to webhook URLs with bounded
// retries, and records successful deliveries on the store.
type Dispatcher struct {
	client     *http.Client
	jobs       store.JobStore
	batches    store.BatchStore
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher using the given delivery policy.
func NewDispatcher(cfg config.WebhookConfig, jobs store.JobStore, batches store.BatchStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:     &http.Client{Timeout: cfg.Timeout},
		jobs:       jobs,
		batches:    batches,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		logger:     logger.With(slog.String("component", "webhook_dispatcher")),
	}
}

// jobPayload is the body posted for a settled job.
type jobPayload struct {
	JobID        string          `json:"job_id"`
	BatchID      string          `json:"batch_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       string          `json:"status"`
	Success      bool            `json:"success"`
	Result       json.RawMessage `json:"result,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Error        string          `json:"error,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	IsFromCache  bool            `json:"is_from_cache"`
}

// batchPayload is the body posted for a settled batch.
type batchPayload struct {
	BatchID   string               `json:"batch_id"`
	Timestamp time.Time            `json:"timestamp"`
	Summary   domain.BatchSummary  `json:"summary"`
	Jobs      []batchMemberPayload `json:"jobs"`
}

// batchMemberPayload is one member's outcome inside a batch payload.
type batchMemberPayload struct {
	JobID   string          `json:"job_id"`
	Status  string          `json:"status"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DispatchJob posts the job's settlement to its webhook URL and marks
// the delivery on success. Jobs without a webhook are a no-op. The
// returned error is informational; callers log it and move on.
func (d *Dispatcher) DispatchJob(ctx context.Context, job *domain.Job) error {
	if job.Webhook == nil || job.Webhook.Delivered {
		return nil
	}

	payload := jobPayload{
		JobID:        job.ID.String(),
		Timestamp:    time.Now().UTC(),
		Status:       string(job.Status),
		Success:      job.Status == domain.JobStatusCompleted,
		Error:        job.ErrorMessage,
		AttemptCount: job.AttemptCount,
		IsFromCache:  job.IsFromCache,
	}
	if job.BatchID != nil {
		payload.BatchID = job.BatchID.String()
	}
	if job.Webhook.IncludeResult {
		payload.Result = job.Result
	}
	if job.Webhook.IncludePayload {
		payload.Payload = job.Payload
	}

	if err := d.deliver(ctx, job.Webhook, eventJobSettled, payload); err != nil {
		d.logger.WarnContext(ctx, "job webhook delivery failed",
			slog.String("job_id", job.ID.String()),
			slog.String("url", job.Webhook.URL),
			slog.String("error", err.Error()))
		return err
	}

	if err := d.jobs.MarkJobWebhookDelivered(ctx, job.ID); err != nil {
		d.logger.WarnContext(ctx, "failed to record job webhook delivery",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return err
	}

	d.logger.InfoContext(ctx, "job webhook delivered",
		slog.String("job_id", job.ID.String()),
		slog.String("url", job.Webhook.URL))
	return nil
}

// DispatchBatch posts the batch settlement, including every member's
// outcome, and marks the delivery on success.
func (d *Dispatcher) DispatchBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error {
	if batch.Webhook == nil || batch.Webhook.Delivered {
		return nil
	}

	payload := batchPayload{
		BatchID:   batch.ID.String(),
		Timestamp: time.Now().UTC(),
		Summary:   domain.SummarizeJobs(jobs),
		Jobs:      make([]batchMemberPayload, 0, len(jobs)),
	}
	for _, job := range jobs {
		member := batchMemberPayload{
			JobID:   job.ID.String(),
			Status:  string(job.Status),
			Success: job.Status == domain.JobStatusCompleted,
			Error:   job.ErrorMessage,
		}
		if batch.Webhook.IncludeResult {
			member.Result = job.Result
		}
		payload.Jobs = append(payload.Jobs, member)
	}

	if err := d.deliver(ctx, batch.Webhook, eventBatchSettled, payload); err != nil {
		d.logger.WarnContext(ctx, "batch webhook delivery failed",
			slog.String("batch_id", batch.ID.String()),
			slog.String("url", batch.Webhook.URL),
			slog.String("error", err.Error()))
		return err
	}

	if err := d.batches.MarkBatchWebhookDelivered(ctx, batch.ID); err != nil {
		d.logger.WarnContext(ctx, "failed to record batch webhook delivery",
			slog.String("batch_id", batch.ID.String()),
			slog.String("error", err.Error()))
		return err
	}

	d.logger.InfoContext(ctx, "batch webhook delivered",
		slog.String("batch_id", batch.ID.String()),
		slog.String("url", batch.Webhook.URL))
	return nil
}

// deliver posts the payload with capped exponential backoff. A non-2xx
// response counts as a failed attempt.
func (d *Dispatcher) deliver(ctx context.Context, cfg *domain.WebhookConfig, event string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(d.maxRetries), retry.NewExponential(d.baseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Alchemy-Event", event)
		for name, value := range cfg.Headers {
			req.Header.Set(name, value)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retry.RetryableError(fmt.Errorf("webhook endpoint returned %d", resp.StatusCode))
		}
		return nil
	})
}
