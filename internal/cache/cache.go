// Package cache implements the time-bounded memo of remote lookups.
//
// Entries are keyed by resolved coordinate and expire after a fixed TTL
// set at mount time. A stale entry is never returned: expired means
// absent, and the caller re-fetches and overwrites. There is no size
// bound; entries for coordinates no longer requested age out of
// relevance but are only reclaimed by the background sweep. For a
// per-mount-session lifetime this is an accepted limitation.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL matches the staleness window the filesystem documents:
// repeated reads within ten seconds see the same remote answer.
const DefaultTTL = 10 * time.Second

// Stats counts cache effectiveness for the metrics collector.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// Cache is a TTL-bounded read-through memo. Concurrent Get/Put/Delete
// are safe; two concurrent misses both fetching and both writing is a
// benign lost-update race, last write wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	stats   Stats

	// now is the clock seam for staleness tests.
	now func() time.Time
}

type entry struct {
	payload    interface{}
	insertedAt time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given TTL. Zero or negative ttl falls
// back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured expiry window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the payload stored for key. ok is false both when the key
// is absent and when the entry has expired; callers treat either as
// "fetch from remote, then Put".
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		c.stats.Misses++
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.payload, true
}

// Put stores payload under key, unconditionally overwriting any
// previous entry. Payloads are never merged.
func (c *Cache) Put(key string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{payload: payload, insertedAt: c.now()}
}

// Delete removes key immediately. Used by write paths so the next read
// after a successful remote mutation cannot observe the pre-write value.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Sweep removes every expired entry and returns how many were dropped.
// The mount manager runs this on a ticker so an idle mount does not
// accumulate dead entries forever.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, key)
			dropped++
		}
	}
	c.stats.Evictions += uint64(dropped)
	return dropped
}
