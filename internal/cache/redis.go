package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// keyPrefix namespaces cache entries within a shared Redis instance.
const keyPrefix = "alchemy:cache:"

// scanBatchSize bounds how many keys one SCAN iteration returns during
// cleanup.
const scanBatchSize = 256

// RedisCache is a ResultCache backed by Redis. Entries are stored as JSON
// documents under prefixed fingerprint keys.
type RedisCache struct {
	rdb    *goredis.Client
	logger *slog.Logger
}

var _ ResultCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis at addr and verifies connectivity with a
// ping before returning.
func NewRedisCache(ctx context.Context, addr string, logger *slog.Logger) (*RedisCache, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		rdb:    rdb,
		logger: logger.With("component", "redis_cache"),
	}, nil
}

// Get looks up an entry by fingerprint. Backend failures surface as
// ErrUnavailable so callers can treat them as a forced miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is unusable; drop it and report a miss.
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = c.rdb.Del(ctx, keyPrefix+key).Err()
		return nil, false, nil
	}

	// Best-effort access-time refresh; a failure here must not turn a hit
	// into an error.
	entry.LastAccessedAt = time.Now().UTC()
	if refreshed, err := json.Marshal(entry); err == nil {
		if err := c.rdb.Set(ctx, keyPrefix+key, refreshed, 0).Err(); err != nil {
			c.logger.Debug("failed to refresh cache entry access time", "key", key, "error", err)
		}
	}

	return &entry, true, nil
}

// Put writes through an entry for the key. Last write wins.
func (c *RedisCache) Put(ctx context.Context, key string, value json.RawMessage, metadata map[string]string) error {
	now := time.Now().UTC()
	entry := Entry{
		Key:            key,
		Value:          value,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.rdb.Set(ctx, keyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	return nil
}

// Invalidate removes a single entry.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: invalidate: %v", ErrUnavailable, err)
	}
	return nil
}

// Cleanup scans the cache namespace and removes entries created longer
// than maxAge ago.
func (c *RedisCache) Cleanup(ctx context.Context, maxAge time.Duration) (CleanupStats, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	stats := CleanupStats{}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		stats.Scanned++
		fullKey := iter.Val()

		raw, err := c.rdb.Get(ctx, fullKey).Bytes()
		if errors.Is(err, goredis.Nil) {
			// Deleted concurrently; nothing to do.
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("%w: cleanup get: %v", ErrUnavailable, err)
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.CreatedAt.Before(cutoff) {
			if delErr := c.rdb.Del(ctx, fullKey).Err(); delErr != nil {
				return stats, fmt.Errorf("%w: cleanup del: %v", ErrUnavailable, delErr)
			}
			stats.Deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("%w: cleanup scan: %v", ErrUnavailable, err)
	}

	return stats, nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
