package api

import (
	"errors"
	"net/http"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes. This prevents leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrBatchNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors: the entity exists but refuses the transition
	case errors.Is(err, store.ErrNotPending),
		errors.Is(err, store.ErrAlreadyTerminal),
		errors.Is(err, store.ErrAlreadySettled),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidProcessorKind),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidWebhookURL),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrDuplicateBatchMember),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Validation errors pass their message through
// because it describes the caller's own input; everything else gets a
// generic message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrBatchNotFound):
		return "Batch not found"
	case errors.Is(err, store.ErrNotPending):
		return "Job is no longer pending"
	case errors.Is(err, store.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrInvalidTransition):
		return "Job already finished"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidProcessorKind),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidWebhookURL),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrDuplicateBatchMember):
		return err.Error()
	default:
		return "An unexpected error occurred"
	}
}
