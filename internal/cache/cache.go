// Package cache provides the namespaced TTL cache every provider client is
// built on: in-memory and Redis backends with glob-pattern invalidation.
package cache

import (
	"sync"
	"time"
)

// TTL classes. Providers pick the class matching how fast the upstream data
// changes; TTLNone marks auth/session endpoints that must never be cached.
const (
	TTLStatic   = 24 * time.Hour   // rarely-changing metadata
	TTLTrending = time.Hour        // discovery feeds
	TTLDynamic  = 5 * time.Minute  // continue-watching, history
	TTLShort    = time.Minute      // search results
	TTLNone     = time.Duration(0) // bypass cache entirely
)

// Cache is a key/value store with per-entry TTL and pattern invalidation.
// Values are raw JSON payloads so all backends behave identically.
type Cache interface {
	// Get retrieves a value. Returns false if absent or expired.
	Get(key string) ([]byte, bool)
	// Set stores a value with the given TTL. A TTL <= 0 is a no-op: entries
	// that must not be cached are never written.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a single key.
	Delete(key string)
	// DeletePattern removes every key matching the glob pattern and returns
	// how many were removed. '*' matches any run of characters including
	// separators, '?' matches exactly one.
	DeletePattern(pattern string) int
	// Clear removes all values.
	Clear()
	// Stats returns cache counters.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// entry is a cached value with its expiration time.
type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// memoryCache is the in-process Cache backend.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemoryCache creates an in-memory cache. A positive sweepInterval starts
// a background janitor that removes expired entries; Close stops it.
func NewMemoryCache(sweepInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
	}

	if sweepInterval > 0 {
		c.janitor = &janitor{
			interval: sweepInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired(time.Now()) {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	c.stats.Sets++
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) DeletePattern(pattern string) int {
	re, err := compileGlob(pattern)
	if err != nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) Close() error {
	if c.janitor != nil {
		c.janitor.stopOnce.Do(func() { close(c.janitor.stop) })
	}
	return nil
}

// deleteExpired removes all expired entries, returning how many were removed.
func (c *memoryCache) deleteExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			count++
		}
	}

	c.stats.Evictions += int64(count)
	return count
}

// janitor periodically sweeps expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// noOpCache disables caching entirely.
type noOpCache struct{}

// NewNoOpCache returns a cache that stores nothing.
func NewNoOpCache() Cache {
	return &noOpCache{}
}

func (noOpCache) Get(string) ([]byte, bool)         { return nil, false }
func (noOpCache) Set(string, []byte, time.Duration) {}
func (noOpCache) Delete(string)                     {}
func (noOpCache) DeletePattern(string) int          { return 0 }
func (noOpCache) Clear()                            {}
func (noOpCache) Stats() Stats                      { return Stats{} }
func (noOpCache) Close() error                      { return nil }
