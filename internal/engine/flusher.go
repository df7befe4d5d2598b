package engine

import (
	"context"
	"time"

	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/pkg/cache"
	"github.com/profile-agent/pkg/logger"
)

// Flusher periodically persists the in-memory cache snapshot so warm
// reads survive a restart. Losing up to one flush window on an
// ungraceful exit is acceptable; everything in the cache can be
// re-fetched.
type Flusher struct {
	cache    *cache.Cache
	repo     storage.Repository
	interval time.Duration
	log      *logger.Logger
}

// NewFlusher creates a cache snapshot flusher.
func NewFlusher(c *cache.Cache, repo storage.Repository, interval time.Duration, log *logger.Logger) *Flusher {
	return &Flusher{
		cache:    c,
		repo:     repo,
		interval: interval,
		log:      log.WithComponent("flusher"),
	}
}

// Restore loads the persisted snapshot into the cache at startup.
func (f *Flusher) Restore(ctx context.Context) error {
	rows, err := f.repo.LoadCacheSnapshot(ctx)
	if err != nil {
		return err
	}

	entries := make([]cache.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, cache.Entry{
			Key:       row.CacheKey,
			Value:     row.Value,
			WrittenAt: row.WrittenAt,
			ExpiresAt: row.ExpiresAt,
		})
	}
	f.cache.Restore(entries)

	f.log.Info().Int("entries", len(entries)).Msg("Cache snapshot restored")
	return nil
}

// Start flushes on a fixed period until ctx is cancelled, with one last
// flush on the way out.
func (f *Flusher) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Flush(context.Background())
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush writes the current snapshot through to storage.
func (f *Flusher) Flush(ctx context.Context) {
	snapshot := f.cache.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	rows := make([]models.CacheEntry, 0, len(snapshot))
	for _, entry := range snapshot {
		rows = append(rows, models.CacheEntry{
			CacheKey:  entry.Key,
			Value:     entry.Value,
			WrittenAt: entry.WrittenAt,
			ExpiresAt: entry.ExpiresAt,
		})
	}

	if err := f.repo.SaveCacheSnapshot(ctx, rows); err != nil {
		f.log.Error().Err(err).Msg("Cache flush failed")
		return
	}
	f.log.Debug().Int("entries", len(rows)).Msg("Cache snapshot flushed")
}
