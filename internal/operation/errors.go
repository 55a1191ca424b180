package operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexfold/alchemy-api/internal/inference"
)

// ErrAttemptsExhausted is returned when every permitted attempt failed
// with a transient error.
var ErrAttemptsExhausted = errors.New("all execution attempts exhausted")

// Error is an invocation failure annotated with how many attempts were
// made before giving up. The job store persists the count on failed jobs.
type Error struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("operation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// AttemptCount extracts the attempt count from an invocation error.
// Errors raised outside the retry layer count as a single attempt.
func AttemptCount(err error) int {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Attempts
	}
	return 1
}

// IsTransient reports whether the error is worth retrying. Provider
// outages, rate limits and attempt timeouts are transient; validation
// failures, safety blocks and malformed replies are permanent.
func IsTransient(err error) bool {
	return errors.Is(err, inference.ErrTransientFailure) ||
		errors.Is(err, context.DeadlineExceeded)
}
