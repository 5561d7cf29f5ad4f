package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// Keys longer than this are content-hashed to bound memory; cache keys
	// are derived from free-form hypothesis text with unbounded cardinality.
	maxKeyLength = 250

	// Share of entries dropped in one LRU eviction pass, so eviction
	// amortizes instead of firing on every insert at capacity.
	evictionFraction = 0.25
)

// Entry is a single cached analysis response.
type Entry struct {
	Value        string
	CreatedAt    time.Time
	TTL          time.Duration
	LastAccessed time.Time
	AccessCount  int64
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Metrics is a point-in-time snapshot of cache effectiveness.
type Metrics struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Store is a fixed-capacity TTL cache with batch LRU eviction. All methods
// are safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	capacity   int
	defaultTTL time.Duration
	hits       int64
	misses     int64

	timeProvider func() time.Time
	stopSweep    chan struct{}
	sweepOnce    sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(now func() time.Time) Option {
	return func(s *Store) {
		s.timeProvider = now
	}
}

// NewStore creates a store holding at most capacity entries, each living
// defaultTTL unless Set overrides it.
func NewStore(capacity int, defaultTTL time.Duration, opts ...Option) *Store {
	s := &Store{
		entries:      make(map[string]*Entry),
		capacity:     capacity,
		defaultTTL:   defaultTTL,
		timeProvider: time.Now,
		stopSweep:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeKey lowercases and collapses whitespace so that trivially
// reformatted hypotheses share an entry; oversized keys are hashed.
func NormalizeKey(key string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(key), " "))
	if len(normalized) > maxKeyLength {
		sum := sha256.Sum256([]byte(normalized))
		return hex.EncodeToString(sum[:])
	}
	return normalized
}

// Get returns the cached value for key, updating recency bookkeeping.
// Expired entries are treated as absent and removed.
func (s *Store) Get(key string) (string, bool) {
	k := NormalizeKey(key)
	now := s.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[k]
	if !ok {
		s.misses++
		return "", false
	}
	if entry.expired(now) {
		delete(s.entries, k)
		s.misses++
		return "", false
	}

	entry.LastAccessed = now
	entry.AccessCount++
	s.hits++
	return entry.Value, true
}

// Set stores value under key with the given TTL (defaultTTL when ttl <= 0),
// evicting the least-recently-used quarter of the store first if full.
func (s *Store) Set(key, value string, ttl time.Duration) {
	k := NormalizeKey(key)
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[k]; !exists && len(s.entries) >= s.capacity {
		s.evictLRU()
	}

	s.entries[k] = &Entry{
		Value:        value,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
	}
}

// Has reports whether key maps to a live entry without touching recency.
func (s *Store) Has(key string) bool {
	k := NormalizeKey(key)
	now := s.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[k]
	return ok && !entry.expired(now)
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	k := NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

// Clear drops every entry but keeps hit/miss counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// Metrics returns current hit/miss counters and size.
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		Hits:   s.hits,
		Misses: s.misses,
		Size:   len(s.entries),
	}
	if total := s.hits + s.misses; total > 0 {
		m.HitRate = float64(s.hits) / float64(total)
	}
	return m
}

// evictLRU removes the least-recently-accessed 25% of entries (at least
// one). Caller holds the lock. The scan is O(n log n) over current entries,
// which is fine at the capacities this store is configured with.
func (s *Store) evictLRU() {
	type victim struct {
		key          string
		lastAccessed time.Time
	}
	candidates := make([]victim, 0, len(s.entries))
	for k, e := range s.entries {
		candidates = append(candidates, victim{key: k, lastAccessed: e.LastAccessed})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	count := int(float64(len(candidates)) * evictionFraction)
	if count < 1 {
		count = 1
	}
	for _, v := range candidates[:count] {
		delete(s.entries, v.key)
	}
}

// RemoveExpired drops every expired entry and returns how many were removed.
func (s *Store) RemoveExpired() int {
	now := s.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweep runs RemoveExpired on the given interval until Stop is called.
// Entries that are written but never re-read would otherwise only leave the
// map through capacity eviction.
func (s *Store) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RemoveExpired()
			case <-s.stopSweep:
				return
			}
		}
	}()
}

// Stop terminates the background sweep. Safe to call more than once.
func (s *Store) Stop() {
	s.sweepOnce.Do(func() {
		close(s.stopSweep)
	})
}
