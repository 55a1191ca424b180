package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache is an in-process ResultCache used for tests and for running
// without a Redis backend.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ ResultCache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
	}
}

// Get looks up an entry by key and refreshes its last-accessed time.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}

	entry.LastAccessedAt = time.Now().UTC()
	c.entries[key] = entry

	out := entry
	return &out, true, nil
}

// Put writes through an entry for the key. Last write wins.
func (c *MemoryCache) Put(ctx context.Context, key string, value json.RawMessage, metadata map[string]string) error {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Key:            key,
		Value:          value,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	return nil
}

// Invalidate removes a single entry.
func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Cleanup removes entries created longer than maxAge ago.
func (c *MemoryCache) Cleanup(ctx context.Context, maxAge time.Duration) (CleanupStats, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CleanupStats{}
	for key, entry := range c.entries {
		stats.Scanned++
		if entry.CreatedAt.Before(cutoff) {
			delete(c.entries, key)
			stats.Deleted++
		}
	}
	return stats, nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
