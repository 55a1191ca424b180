// Package api provides HTTP handlers for the API.
package api

import (
	"encoding/json"
	"time"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/service"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// WebhookRequest configures a settlement callback on a submission.
type WebhookRequest struct {
	URL            string            `json:"url"             validate:"required"`
	Headers        map[string]string `json:"headers"`
	IncludeResult  bool              `json:"include_result"`
	IncludePayload bool              `json:"include_payload"`
}

// SubmitJobRequest is the body of POST /jobs.
type SubmitJobRequest struct {
	ProcessorKind string          `json:"processor_kind" validate:"required"`
	Payload       json.RawMessage `json:"payload"        validate:"required"`
	Webhook       *WebhookRequest `json:"webhook"`
}

// SubmitBatchRequest is the body of POST /batches.
type SubmitBatchRequest struct {
	Jobs    []SubmitJobRequest `json:"jobs"    validate:"required,min=1,dive"`
	Webhook *WebhookRequest    `json:"webhook"`
}

// WebhookStatusResponse reports callback configuration and delivery state.
type WebhookStatusResponse struct {
	URL         string     `json:"url"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// JobResponse is the wire representation of a job.
type JobResponse struct {
	ID            string                 `json:"id"`
	BatchID       *string                `json:"batch_id,omitempty"`
	ProcessorKind string                 `json:"processor_kind"`
	Status        string                 `json:"status"`
	Result        json.RawMessage        `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	AttemptCount  int                    `json:"attempt_count"`
	IsFromCache   bool                   `json:"is_from_cache"`
	Usage         *usage.Summary         `json:"usage,omitempty"`
	Webhook       *WebhookStatusResponse `json:"webhook,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	ClaimedAt     *time.Time             `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// BatchResponse is the wire representation of a batch with a summary
// computed from the members' live states.
type BatchResponse struct {
	ID        string                 `json:"id"`
	Summary   domain.BatchSummary    `json:"summary"`
	Jobs      []JobResponse          `json:"jobs"`
	Webhook   *WebhookStatusResponse `json:"webhook,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	SettledAt *time.Time             `json:"settled_at,omitempty"`
}

// toWebhookConfig converts the request DTO to the domain configuration.
func (r *WebhookRequest) toWebhookConfig() *domain.WebhookConfig {
	if r == nil {
		return nil
	}
	return &domain.WebhookConfig{
		URL:            r.URL,
		Headers:        r.Headers,
		IncludeResult:  r.IncludeResult,
		IncludePayload: r.IncludePayload,
	}
}

// toJobRequest converts the submission DTO to a service request.
func (r SubmitJobRequest) toJobRequest() service.JobRequest {
	return service.JobRequest{
		ProcessorKind: r.ProcessorKind,
		Payload:       r.Payload,
		Webhook:       r.Webhook.toWebhookConfig(),
	}
}

// NewJobResponse builds the wire representation of a job.
func NewJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:            job.ID.String(),
		ProcessorKind: string(job.ProcessorKind),
		Status:        string(job.Status),
		Result:        job.Result,
		Error:         job.ErrorMessage,
		AttemptCount:  job.AttemptCount,
		IsFromCache:   job.IsFromCache,
		Usage:         job.Usage,
		CreatedAt:     job.CreatedAt,
		ClaimedAt:     job.ClaimedAt,
		CompletedAt:   job.CompletedAt,
	}
	if job.BatchID != nil {
		id := job.BatchID.String()
		resp.BatchID = &id
	}
	if job.Webhook != nil {
		resp.Webhook = &WebhookStatusResponse{
			URL:         job.Webhook.URL,
			Delivered:   job.Webhook.Delivered,
			DeliveredAt: job.Webhook.DeliveredAt,
		}
	}
	return resp
}

// NewBatchResponse builds the wire representation of a batch result.
func NewBatchResponse(result *service.BatchResult) BatchResponse {
	resp := BatchResponse{
		ID:        result.Batch.ID.String(),
		Summary:   result.Summary,
		Jobs:      make([]JobResponse, 0, len(result.Jobs)),
		CreatedAt: result.Batch.CreatedAt,
		SettledAt: result.Batch.SettledAt,
	}
	for _, job := range result.Jobs {
		resp.Jobs = append(resp.Jobs, NewJobResponse(job))
	}
	if result.Batch.Webhook != nil {
		resp.Webhook = &WebhookStatusResponse{
			URL:         result.Batch.Webhook.URL,
			Delivered:   result.Batch.Webhook.Delivered,
			DeliveredAt: result.Batch.Webhook.DeliveredAt,
		}
	}
	return resp
}
