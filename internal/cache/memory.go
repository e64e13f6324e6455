package cache

import (
	"fmt"
	"sync"
	"time"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      any
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache is an in-memory TTL cache safe for concurrent use.
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a cache whose entries live for ttl. A janitor
// goroutine sweeps expired entries every sweep interval until Close.
func NewMemoryCache(ttl, sweep time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	if sweep > 0 {
		go cache.cleanupExpired(sweep)
	}

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache, expired ones included
// until the next sweep.
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the janitor goroutine.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key, entry := range c.items {
		if entry.IsExpired() {
			delete(c.items, key)
		}
	}
}

func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// DurationCache remembers probed audio durations. Entries are keyed on the
// file's path, size and modification time so an edited file is probed again.
type DurationCache struct {
	*MemoryCache
}

// NewDurationCache creates a duration cache that keeps results for an hour.
func NewDurationCache() *DurationCache {
	return &DurationCache{
		MemoryCache: NewMemoryCache(time.Hour, 10*time.Minute),
	}
}

// DurationKey builds the cache key for a file.
func DurationKey(path string, size int64, modTime time.Time) string {
	return fmt.Sprintf("%s|%d|%d", path, size, modTime.UnixNano())
}

// SetDuration caches seconds under key.
func (dc *DurationCache) SetDuration(key string, seconds int) {
	dc.Set(key, seconds)
}

// GetDuration retrieves a cached duration in seconds.
func (dc *DurationCache) GetDuration(key string) (int, bool) {
	value, exists := dc.Get(key)
	if !exists {
		return 0, false
	}

	seconds, ok := value.(int)
	return seconds, ok
}
