// Package cache implements the fingerprint cache: serialized operation
// results stored under deterministic content fingerprints, with TTL-based
// cleanup.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnavailable indicates the cache backend could not be reached. Callers
// treat it as a forced miss: execution proceeds without caching rather
// than failing the job.
var ErrUnavailable = errors.New("cache unavailable")

// Entry is a stored serialized result keyed by fingerprint.
type Entry struct {
	Key            string            `json:"key"`
	Value          json.RawMessage   `json:"value"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
}

// CleanupStats reports the outcome of one cleanup pass.
type CleanupStats struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
}

// ResultCache stores and retrieves serialized operation results by
// fingerprint. A Get immediately after a successful Put for the same key
// observes the written value until explicit invalidation or expiry.
// Concurrent Puts to the same key are last-write-wins, which is acceptable
// because the underlying operation is deterministic for a given key.
type ResultCache interface {
	// Get looks up an entry by key. A miss is (nil, false, nil); misses
	// have no side effects.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Put writes through an entry for the key, replacing any previous value.
	Put(ctx context.Context, key string, value json.RawMessage, metadata map[string]string) error

	// Invalidate removes a single entry. Removing an absent key is not an
	// error.
	Invalidate(ctx context.Context, key string) error

	// Cleanup removes entries created longer than maxAge ago. Safe to run
	// concurrently with reads and writes.
	Cleanup(ctx context.Context, maxAge time.Duration) (CleanupStats, error)
}
