package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func TestGetAfterExpiryReturnsAbsent(t *testing.T) {
	now, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewWithClock(now)

	c.Set(Key("reviews", "loc-1"), []byte(`["a"]`), TTLShort)

	value, ok := c.Get(Key("reviews", "loc-1"))
	require.True(t, ok)
	assert.Equal(t, []byte(`["a"]`), value)

	advance(TTLShort + time.Second)

	_, ok = c.Get(Key("reviews", "loc-1"))
	assert.False(t, ok, "expired entry must be absent, never stale")
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on read")
}

func TestSetRenewsExpiry(t *testing.T) {
	now, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewWithClock(now)

	c.Set("v2:k", []byte("one"), time.Minute)
	advance(50 * time.Second)
	c.Set("v2:k", []byte("two"), time.Minute)
	advance(30 * time.Second)

	value, ok := c.Get("v2:k")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), value)
}

func TestInvalidateByPattern(t *testing.T) {
	c := New()
	c.Set(Key("reviews", "loc-1"), []byte("a"), TTLShort)
	c.Set(Key("reviews", "loc-2"), []byte("b"), TTLShort)
	c.Set(Key("accounts"), []byte("c"), TTLLong)

	removed, err := c.InvalidateByPattern(`:loc-1$`)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(Key("reviews", "loc-1"))
	assert.False(t, ok)
	_, ok = c.Get(Key("reviews", "loc-2"))
	assert.True(t, ok)
	_, ok = c.Get(Key("accounts"))
	assert.True(t, ok)
}

func TestInvalidateByPatternBadRegex(t *testing.T) {
	c := New()
	_, err := c.InvalidateByPattern("[")
	assert.Error(t, err)
}

func TestKeyCarriesSchemaVersion(t *testing.T) {
	assert.Equal(t, "v2:reviews:loc-1", Key("reviews", "loc-1"))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	now, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewWithClock(now)

	c.Set(Key("accounts"), []byte("accounts"), TTLLong)
	c.Set(Key("reviews", "loc-1"), []byte("reviews"), TTLShort)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)

	// Simulate restart after the short tier has lapsed.
	advance(TTLShort + time.Minute)
	restored := NewWithClock(now)
	restored.Restore(snapshot)

	_, ok := restored.Get(Key("reviews", "loc-1"))
	assert.False(t, ok, "short-tier entry expired across the restart")
	value, ok := restored.Get(Key("accounts"))
	require.True(t, ok)
	assert.Equal(t, []byte("accounts"), value)
}

func TestRestoreSkipsOtherSchemaVersions(t *testing.T) {
	c := New()
	c.Restore([]Entry{{
		Key:       "v1:accounts",
		Value:     []byte("stale"),
		WrittenAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	_, ok := c.Get("v1:accounts")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("v2:a", []byte("a"), TTLShort)
	c.Set("v2:b", []byte("b"), TTLShort)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
