package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Janitor runs periodic age-based cleanup against a ResultCache.
type Janitor struct {
	cache    ResultCache
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor that removes entries older than maxAge
// every interval.
func NewJanitor(cache ResultCache, maxAge, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		cache:    cache,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.With("component", "cache_janitor"),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go j.run(ctx)
}

// Stop halts the cleanup loop and waits for an in-flight pass to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			stats, err := j.cache.Cleanup(ctx, j.maxAge)
			if err != nil {
				j.logger.Error("cache cleanup failed", "error", err)
				continue
			}
			if stats.Deleted > 0 {
				j.logger.Info("cache cleanup completed",
					"scanned", stats.Scanned,
					"deleted", stats.Deleted)
			}
		}
	}
}
