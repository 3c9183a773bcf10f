// Package cache provides a TTL- and capacity-bounded keyed cache for
// expensive owner-scoped resources, such as a per-user mailbox session or
// chat context. Eviction is frequency-based: when the cache is full, the
// entry with the lowest access count goes first. A frequently-touched
// owner's entry must survive bursts of unrelated single-use lookups, which
// plain LRU would not guarantee.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is a single cached value with its bookkeeping. Entries are owned
// exclusively by the cache; callers never see or mutate this metadata.
type entry[V any] struct {
	value       V
	createdAt   time.Time
	accessCount int64
	seq         uint64 // insertion order, breaks eviction ties deterministically
}

// Cache is a bounded keyed cache. The zero value is not usable; construct
// with New. All methods are safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	maxSize int
	ttl     time.Duration
	nextSeq uint64

	group singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

// Stats is a snapshot of cache state for observability.
type Stats struct {
	Size         int              `json:"size"`
	MaxSize      int              `json:"max_size"`
	TTL          time.Duration    `json:"ttl"`
	Keys         []string         `json:"keys"`
	AccessCounts map[string]int64 `json:"access_counts"`
}

// New creates a Cache holding at most maxSize entries, each visible for at
// most ttl after creation. A non-positive maxSize is clamped to 1: eviction
// over an empty map cannot make room, so capacity zero would never admit an
// entry.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrCreate returns the cached value for key if present and unexpired;
// otherwise it invokes factory exactly once for that key, even under
// concurrent callers — later callers block until the winner's result is
// available and receive that same value. Every successful lookup, hit or
// newly created, counts one access.
func (c *Cache[V]) GetOrCreate(ctx context.Context, key string, factory func(ctx context.Context) (V, error)) (V, error) {
	// Fast path: fresh hit.
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expiredLocked(e) {
		e.accessCount++
		value := e.value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	// Miss: at most one concurrent factory call per key.
	result, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have populated the entry between our check and
		// winning the flight.
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && !c.expiredLocked(e) {
			value := e.value
			c.mu.Unlock()
			return value, nil
		}
		c.mu.Unlock()

		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.storeLocked(key, value)
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	value := result.(V)

	// Count this lookup against the entry. The entry may already have been
	// evicted by an unrelated insert; the value is still valid to return.
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expiredLocked(e) {
		e.accessCount++
	}
	c.mu.Unlock()

	return value, nil
}

// Get returns the cached value for key if present and unexpired, counting
// one access. The second return reports whether a value was found.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !c.expiredLocked(e) {
		e.accessCount++
		return e.value, true
	}

	var zero V
	return zero, false
}

// Remove deletes the entry for key, reporting whether it existed.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
}

// Stats returns a snapshot of the cache for observability endpoints.
// Expired entries are pruned first so the snapshot reflects visible state.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked()

	stats := Stats{
		Size:         len(c.entries),
		MaxSize:      c.maxSize,
		TTL:          c.ttl,
		Keys:         make([]string, 0, len(c.entries)),
		AccessCounts: make(map[string]int64, len(c.entries)),
	}
	for key, e := range c.entries {
		stats.Keys = append(stats.Keys, key)
		stats.AccessCounts[key] = e.accessCount
	}
	return stats
}

// storeLocked inserts a value with a fresh creation time, evicting as needed
// to respect capacity. Caller holds c.mu.
func (c *Cache[V]) storeLocked(key string, value V) {
	// Expired entries never count toward capacity.
	c.dropExpiredLocked()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxSize {
			c.evictLeastUsedLocked()
		}
	}

	c.nextSeq++
	c.entries[key] = &entry[V]{
		value:     value,
		createdAt: c.now(),
		// The creating lookup is counted by the post-flight touch in
		// GetOrCreate, bringing a fresh entry to an access count of one.
		accessCount: 0,
		seq:         c.nextSeq,
	}
}

// evictLeastUsedLocked removes the entry with the lowest access count,
// breaking ties by insertion order. Caller holds c.mu.
func (c *Cache[V]) evictLeastUsedLocked() {
	var victim string
	var victimEntry *entry[V]

	for key, e := range c.entries {
		if victimEntry == nil ||
			e.accessCount < victimEntry.accessCount ||
			(e.accessCount == victimEntry.accessCount && e.seq < victimEntry.seq) {
			victim = key
			victimEntry = e
		}
	}

	if victimEntry != nil {
		delete(c.entries, victim)
	}
}

// dropExpiredLocked removes TTL-expired entries. Caller holds c.mu.
func (c *Cache[V]) dropExpiredLocked() {
	for key, e := range c.entries {
		if c.expiredLocked(e) {
			delete(c.entries, key)
		}
	}
}

// expiredLocked reports whether the entry is past its TTL. Caller holds c.mu.
func (c *Cache[V]) expiredLocked(e *entry[V]) bool {
	return c.now().Sub(e.createdAt) >= c.ttl
}
