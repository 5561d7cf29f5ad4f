package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestStore(capacity int, ttl time.Duration) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(capacity, ttl, WithTimeProvider(clock.Now)), clock
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "lowercases",
			key:      "Students Prefer Interactive Methods",
			expected: "students prefer interactive methods",
		},
		{
			name:     "collapses whitespace",
			key:      "  students   prefer\tinteractive\nmethods ",
			expected: "students prefer interactive methods",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeKey(tt.key))
		})
	}
}

func TestNormalizeKey_HashesLongKeys(t *testing.T) {
	long := strings.Repeat("a very long hypothesis ", 30)

	normalized := NormalizeKey(long)

	// sha256 hex digest
	assert.Len(t, normalized, 64)
	assert.Equal(t, normalized, NormalizeKey(long))
}

func TestStore_RoundTrip(t *testing.T) {
	store, clock := newTestStore(10, 5*time.Minute)

	store.Set("hypothesis", "analysis result", 0)

	value, ok := store.Get("hypothesis")
	require.True(t, ok)
	assert.Equal(t, "analysis result", value)

	clock.Advance(5*time.Minute + time.Second)

	_, ok = store.Get("hypothesis")
	assert.False(t, ok)
}

func TestStore_GetNormalizesKeys(t *testing.T) {
	store, _ := newTestStore(10, 5*time.Minute)

	store.Set("Students  Prefer Interactive Methods", "result", 0)

	value, ok := store.Get("students prefer interactive methods")
	require.True(t, ok)
	assert.Equal(t, "result", value)
}

func TestStore_ExpiredEntryIsDeletedOnGet(t *testing.T) {
	store, clock := newTestStore(10, time.Minute)

	store.Set("k", "v", 0)
	clock.Advance(2 * time.Minute)

	_, ok := store.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Metrics().Size)
}

func TestStore_LRUEviction(t *testing.T) {
	store, clock := newTestStore(4, time.Hour)

	for i := 0; i < 4; i++ {
		store.Set(fmt.Sprintf("key-%d", i), "v", 0)
		clock.Advance(time.Second)
	}

	// Touch the oldest entry so it is no longer the LRU victim.
	_, ok := store.Get("key-0")
	require.True(t, ok)
	clock.Advance(time.Second)

	// At capacity: the insert evicts 25% (one entry), which is now key-1.
	store.Set("key-4", "v", 0)

	assert.True(t, store.Has("key-0"))
	assert.False(t, store.Has("key-1"))
	assert.True(t, store.Has("key-2"))
	assert.True(t, store.Has("key-3"))
	assert.True(t, store.Has("key-4"))
}

func TestStore_EvictionIsBatched(t *testing.T) {
	store, clock := newTestStore(8, time.Hour)

	for i := 0; i < 8; i++ {
		store.Set(fmt.Sprintf("key-%d", i), "v", 0)
		clock.Advance(time.Second)
	}

	store.Set("key-8", "v", 0)

	// 25% of 8 entries evicted, the two least recently used.
	assert.Equal(t, 7, store.Metrics().Size)
	assert.False(t, store.Has("key-0"))
	assert.False(t, store.Has("key-1"))
	assert.True(t, store.Has("key-2"))
}

func TestStore_OverwriteDoesNotEvict(t *testing.T) {
	store, _ := newTestStore(2, time.Hour)

	store.Set("a", "1", 0)
	store.Set("b", "2", 0)
	store.Set("a", "3", 0)

	assert.True(t, store.Has("b"))
	value, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", value)
}

func TestStore_Metrics(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	store.Set("k", "v", 0)
	_, _ = store.Get("k")
	_, _ = store.Get("k")
	_, _ = store.Get("missing")

	m := store.Metrics()
	assert.Equal(t, int64(2), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.Equal(t, 1, m.Size)
	assert.InDelta(t, 2.0/3.0, m.HitRate, 0.0001)
}

func TestStore_DeleteAndClear(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	store.Set("a", "1", 0)
	store.Set("b", "2", 0)

	store.Delete("a")
	assert.False(t, store.Has("a"))
	assert.True(t, store.Has("b"))

	store.Clear()
	assert.Equal(t, 0, store.Metrics().Size)
}

func TestStore_RemoveExpired(t *testing.T) {
	store, clock := newTestStore(10, time.Minute)

	store.Set("short", "v", time.Minute)
	store.Set("long", "v", time.Hour)

	clock.Advance(2 * time.Minute)

	removed := store.RemoveExpired()
	assert.Equal(t, 1, removed)
	assert.True(t, store.Has("long"))
	assert.False(t, store.Has("short"))
}

func TestStore_AccessCountTracking(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	store.Set("k", "v", 0)
	for i := 0; i < 3; i++ {
		_, ok := store.Get("k")
		require.True(t, ok)
	}

	store.mu.Lock()
	entry := store.entries[NormalizeKey("k")]
	store.mu.Unlock()
	assert.Equal(t, int64(3), entry.AccessCount)
}

func TestStore_SweepStops(t *testing.T) {
	store, _ := newTestStore(10, time.Minute)

	store.StartSweep(10 * time.Millisecond)
	store.Stop()
	store.Stop() // idempotent
}
