// Package operation composes the execution pipeline a worker runs a
// claimed job through. The base operation executes the job's processor;
// decorators layer caching, retries and usage tracking on top of it.
// Capabilities combine by wrapping, so any subset can be assembled.
package operation

import (
	"context"
	"encoding/json"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/usage"
)

// Outcome is the final result of invoking an operation on a job.
type Outcome struct {
	// Result is the result document to persist on the job.
	Result json.RawMessage

	// Usage summarizes the model cost. A cache hit carries an empty
	// summary: served results cost nothing.
	Usage *usage.Summary

	// Fingerprint is the cache key derived from the job payload.
	Fingerprint string

	// FromCache reports whether the result was served from the cache.
	FromCache bool

	// Attempts is the number of execution attempts made. Cache hits
	// make none.
	Attempts int
}

// Operation executes a claimed job and produces its outcome.
type Operation interface {
	Invoke(ctx context.Context, job *domain.Job) (*Outcome, error)
}
