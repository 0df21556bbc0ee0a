// Package cache implements the module's in-memory LRU primitive: a
// generic, TTL-aware cache with its own stats counters, used directly by
// callers that need a keyed cache and composed by internal/httpcache and
// internal/querycache for their tiered stores.
package cache

import (
	"sync"
	"time"
)

// entry is the internal wrapper stored for every key.
type entry[V any] struct {
	value      V
	createdAt  time.Time
	expiresAt  time.Time
	lastAccess time.Time
	accessCount uint64
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of a LRUCache's behavior.
type Stats struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	Evictions         uint64  `json:"evictions"`
	ExpiredCleanups    uint64  `json:"expired_cleanups"`
	CurrentSize        int     `json:"current_size"`
	MaxSize             int     `json:"max_size"`
	HitRate             float64 `json:"hit_rate"`
	AverageEntryAgeSecs float64 `json:"average_entry_age_seconds"`
	TotalAccessCount    uint64  `json:"total_access_count"`
}

type statCounters struct {
	mu              sync.RWMutex
	hits            uint64
	misses          uint64
	evictions       uint64
	expiredCleanups uint64
}

// LRUCache is a generic, thread-safe, TTL-aware least-recently-used cache.
// Eviction picks the entry with the oldest lastAccess time once the cache
// is at MaxSize, matching the reference implementation's scan-based
// tie-break rather than golang-lru's own recency list (which does not
// expose per-entry access timestamps for the stats this type reports).
type LRUCache[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[K]*entry[V]
	maxSize int
	ttl     time.Duration
	stats   statCounters
}

// NewLRUCache creates a cache holding at most maxSize entries, each
// expiring ttl after insertion. A zero ttl means entries never expire on
// their own (they can still be evicted for space).
func NewLRUCache[K comparable, V any](maxSize int, ttl time.Duration) *LRUCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRUCache[K, V]{
		data:    make(map[K]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the value for key, reporting false if it is absent or has
// expired. Expired entries are removed lazily on read.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		c.stats.mu.Lock()
		c.stats.misses++
		c.stats.mu.Unlock()
		return zero, false
	}

	if e.expired(now) {
		c.mu.Lock()
		if cur, still := c.data[key]; still && cur == e {
			delete(c.data, key)
		}
		c.mu.Unlock()

		c.stats.mu.Lock()
		c.stats.misses++
		c.stats.expiredCleanups++
		c.stats.mu.Unlock()
		return zero, false
	}

	c.mu.Lock()
	e.lastAccess = now
	e.accessCount++
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.hits++
	c.stats.mu.Unlock()

	return e.value, true
}

// Set inserts or replaces key's value, evicting the least-recently-used
// entry first if the cache is already at capacity.
func (c *LRUCache[K, V]) Set(key K, value V) {
	now := time.Now()
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictLRULocked()
	}

	c.data[key] = &entry[V]{
		value:      value,
		createdAt:  now,
		expiresAt:  expiresAt,
		lastAccess: now,
	}
}

// evictLRULocked removes the entry with the oldest lastAccess time.
// Callers must hold c.mu.
func (c *LRUCache[K, V]) evictLRULocked() {
	var oldestKey K
	var oldestTime time.Time
	first := true

	for k, e := range c.data {
		if first || e.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccess
			first = false
		}
	}

	if !first {
		delete(c.data, oldestKey)
		c.stats.mu.Lock()
		c.stats.evictions++
		c.stats.mu.Unlock()
	}
}

// Delete removes key unconditionally.
func (c *LRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Contains reports whether key is present and unexpired, without updating
// recency.
func (c *LRUCache[K, V]) Contains(key K) bool {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	return ok && !e.expired(now)
}

// Len returns the current number of entries, including any not yet
// lazily expired.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear empties the cache.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	c.data = make(map[K]*entry[V], c.maxSize)
	c.mu.Unlock()
}

// CleanupExpired removes every expired entry and returns how many were
// removed. Intended to be called periodically from a background ticker
// rather than relying solely on lazy expiration.
func (c *LRUCache[K, V]) CleanupExpired() int {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for k, e := range c.data {
		if e.expired(now) {
			delete(c.data, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.stats.mu.Lock()
		c.stats.expiredCleanups += uint64(removed)
		c.stats.mu.Unlock()
	}
	return removed
}

// RunCleanup starts a goroutine that calls CleanupExpired on the given
// interval until stop is closed. It returns the stop channel so callers
// don't have to synthesize one.
func (c *LRUCache[K, V]) RunCleanup(interval time.Duration) (stop chan struct{}) {
	stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanupExpired()
			case <-stop:
				return
			}
		}
	}()
	return stop
}

// Stats computes a point-in-time snapshot. Average entry age and total
// access count are derived by scanning the live entry set rather than
// tracked incrementally, matching the reference implementation.
func (c *LRUCache[K, V]) Stats() Stats {
	now := time.Now()

	c.mu.RLock()
	size := len(c.data)
	var totalAgeSecs float64
	var totalAccess uint64
	for _, e := range c.data {
		totalAgeSecs += now.Sub(e.createdAt).Seconds()
		totalAccess += e.accessCount
	}
	c.mu.RUnlock()

	c.stats.mu.RLock()
	hits := c.stats.hits
	misses := c.stats.misses
	evictions := c.stats.evictions
	expiredCleanups := c.stats.expiredCleanups
	c.stats.mu.RUnlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	var avgAge float64
	if size > 0 {
		avgAge = totalAgeSecs / float64(size)
	}

	return Stats{
		Hits:                hits,
		Misses:              misses,
		Evictions:           evictions,
		ExpiredCleanups:     expiredCleanups,
		CurrentSize:         size,
		MaxSize:             c.maxSize,
		HitRate:             hitRate,
		AverageEntryAgeSecs: avgAge,
		TotalAccessCount:    totalAccess,
	}
}
