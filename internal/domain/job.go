package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/usage"
)

// JobStatus represents the processing state of a job.
type JobStatus string

// Possible job status values.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted out of
// the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status may move to next under the
// job state machine: pending → processing → {completed, failed}, plus
// pending → cancelled. Statuses are monotonic; terminal states allow no
// outgoing transitions.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// isValidJobStatus checks if the given status is a known JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ProcessorKind identifies one of the supported content transformations.
// The set is closed: dispatch happens over these constants, never over
// free-form strings.
type ProcessorKind string

// Supported processor kinds.
const (
	ProcessorTranscription ProcessorKind = "transcription"
	ProcessorTranslation   ProcessorKind = "translation"
	ProcessorExtraction    ProcessorKind = "extraction"
	ProcessorRendering     ProcessorKind = "rendering"
)

// ParseProcessorKind validates a raw string against the closed set of
// processor kinds.
func ParseProcessorKind(raw string) (ProcessorKind, error) {
	kind := ProcessorKind(raw)
	switch kind {
	case ProcessorTranscription, ProcessorTranslation, ProcessorExtraction, ProcessorRendering:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProcessorKind, raw)
	}
}

// Job represents one unit of asynchronous work submitted for processing.
// It tracks the submitted payload, the cache fingerprint, the lifecycle
// status and the outcome.
//
// Job is treated as a value type: mutation helpers return a copy with the
// field replaced, so every intermediate state is independently inspectable.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	BatchID       *uuid.UUID      `json:"batch_id,omitempty"`
	ProcessorKind ProcessorKind   `json:"processor_kind"`
	Payload       json.RawMessage `json:"payload"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Status        JobStatus       `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	IsFromCache   bool            `json:"is_from_cache"`
	Usage         *usage.Summary  `json:"usage,omitempty"`
	Webhook       *WebhookConfig  `json:"webhook,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a new Job in the pending state with the given processor
// kind, payload and optional webhook configuration.
// Returns an error if validation fails.
func NewJob(kind ProcessorKind, payload json.RawMessage, webhook *WebhookConfig) (*Job, error) {
	job := &Job{
		ID:            uuid.New(),
		ProcessorKind: kind,
		Payload:       payload,
		Status:        JobStatusPending,
		Webhook:       webhook,
		CreatedAt:     time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("%w: job ID cannot be empty", ErrValidation)
	}

	if _, err := ParseProcessorKind(string(j.ProcessorKind)); err != nil {
		return err
	}

	if len(j.Payload) == 0 {
		return ErrEmptyPayload
	}

	if !isValidJobStatus(j.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, j.Status)
	}

	if j.Webhook != nil {
		if err := j.Webhook.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// WithStatus returns a copy of the job with the status replaced.
// Returns an error if the transition violates the state machine.
func (j Job) WithStatus(status JobStatus) (Job, error) {
	if !j.Status.CanTransitionTo(status) {
		return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}
	j.Status = status
	return j, nil
}

// WithClaim returns a copy of the job marked as claimed at the given time.
func (j Job) WithClaim(at time.Time) (Job, error) {
	next, err := j.WithStatus(JobStatusProcessing)
	if err != nil {
		return j, err
	}
	next.ClaimedAt = &at
	return next, nil
}

// WithFingerprint returns a copy of the job with the fingerprint set.
// A fingerprint is immutable once computed.
func (j Job) WithFingerprint(fp string) (Job, error) {
	if j.Fingerprint != "" && j.Fingerprint != fp {
		return j, fmt.Errorf("%w: fingerprint already set", ErrValidation)
	}
	j.Fingerprint = fp
	return j, nil
}

// WithCompletion returns a copy of the job finalized as completed with the
// given result, attempt count and cache provenance.
func (j Job) WithCompletion(result json.RawMessage, attempts int, fromCache bool, at time.Time) (Job, error) {
	next, err := j.WithStatus(JobStatusCompleted)
	if err != nil {
		return j, err
	}
	next.Result = result
	next.AttemptCount = attempts
	next.IsFromCache = fromCache
	next.CompletedAt = &at
	return next, nil
}

// WithUsage returns a copy of the job with the usage summary attached.
func (j Job) WithUsage(summary *usage.Summary) Job {
	j.Usage = summary
	return j
}

// WithFailure returns a copy of the job finalized as failed with the
// captured error message and attempt count.
func (j Job) WithFailure(errMsg string, attempts int, at time.Time) (Job, error) {
	next, err := j.WithStatus(JobStatusFailed)
	if err != nil {
		return j, err
	}
	next.ErrorMessage = errMsg
	next.AttemptCount = attempts
	next.CompletedAt = &at
	return next, nil
}

// WithCancellation returns a copy of the job cancelled before claim.
func (j Job) WithCancellation(at time.Time) (Job, error) {
	next, err := j.WithStatus(JobStatusCancelled)
	if err != nil {
		return j, err
	}
	next.CompletedAt = &at
	return next, nil
}
