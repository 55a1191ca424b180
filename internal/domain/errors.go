// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state or otherwise violate the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidProcessorKind is returned when a job names an unknown
	// processor kind.
	ErrInvalidProcessorKind = errors.New("invalid processor kind")

	// ErrEmptyPayload is returned when a job is submitted without a payload.
	ErrEmptyPayload = errors.New("payload cannot be empty")

	// ErrInvalidWebhookURL is returned when a webhook configuration carries
	// a URL that is not a valid http or https address.
	ErrInvalidWebhookURL = errors.New("invalid webhook URL")

	// ErrEmptyBatch is returned when a batch is created with no member jobs.
	ErrEmptyBatch = errors.New("batch must contain at least one job")

	// ErrDuplicateBatchMember is returned when a batch lists the same job
	// more than once.
	ErrDuplicateBatchMember = errors.New("batch members must be unique")
)
