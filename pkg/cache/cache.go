// Package cache provides an in-memory TTL cache with lazy read-path
// eviction and a snapshot API for periodic persistence.
package cache

import (
	"regexp"
	"sync"
	"time"
)

// schemaVersion is embedded in every key. Bumping it orphans all
// previously persisted entries in one step instead of migrating them.
const schemaVersion = "v2"

// Standard TTL tiers. Short covers frequently-changing reads (locations,
// reviews, posts); Long covers slowly-changing reads (account lists).
const (
	TTLShort = 5 * time.Minute
	TTLLong  = 30 * time.Minute
)

// Entry is a single cache record. Values are JSON-encoded by callers so
// snapshots can be persisted and restored without knowing the concrete type.
type Entry struct {
	Key       string
	Value     []byte
	WrittenAt time.Time
	ExpiresAt time.Time
}

// Cache is a keyed TTL store. Expired entries are treated as absent on
// read and evicted at that point; there is no background sweeper.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// Key builds a versioned cache key from its parts.
func Key(parts ...string) string {
	key := schemaVersion
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Get returns the value for key, or false if absent or expired.
// An expired entry is evicted on the spot.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.now().After(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if current, ok := c.entries[key]; ok && c.now().After(current.ExpiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.Value, true
}

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = Entry{
		Key:       key,
		Value:     value,
		WrittenAt: now,
		ExpiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateByPattern removes all keys matching the regular expression
// and returns how many were removed.
func (c *Cache) InvalidateByPattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Snapshot returns all live entries, for periodic persistence.
func (c *Cache) Snapshot() []Entry {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		snapshot = append(snapshot, entry)
	}
	return snapshot
}

// Restore loads persisted entries, skipping expired ones and entries
// written under a different schema version.
func (c *Cache) Restore(entries []Entry) {
	now := c.now()
	prefix := schemaVersion + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if now.After(entry.ExpiresAt) {
			continue
		}
		if len(entry.Key) < len(prefix) || entry.Key[:len(prefix)] != prefix {
			continue
		}
		c.entries[entry.Key] = entry
	}
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
