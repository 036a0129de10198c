package wikimcp

import (
	"sync"
	"time"
)

// DefaultCacheMaxEntries bounds the cache when no explicit capacity is given.
const DefaultCacheMaxEntries = 500

// TTLCache is a size-bounded in-memory cache with per-entry expiry. Reads
// promote entries in an LRU chain; inserting into a full cache evicts the
// least recently used entry. All methods are safe for concurrent use.
//
// A single lock guards the map and the LRU chain. The recency order is
// global, so the eviction victim is always the coldest entry in the whole
// cache rather than in one shard.
type TTLCache struct {
	mu         sync.Mutex
	store      map[string]*cacheEntry
	head, tail *cacheEntry // head is most recently used
	maxEntries int
	defaultTTL time.Duration

	hits        int64
	misses      int64
	sets        int64
	evictions   int64
	expirations int64
}

// cacheEntry is one value in the LRU chain.
type cacheEntry struct {
	key        string
	value      interface{}
	expiresAt  time.Time
	prev, next *cacheEntry
}

// CacheStats is a point-in-time snapshot of cache performance counters.
type CacheStats struct {
	Size        int
	Capacity    int
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	Expirations int64
	HitRatio    float64
}

// NewTTLCache creates a cache holding at most maxEntries values, each living
// for defaultTTL unless SetWithTTL overrides it. Non-positive maxEntries
// falls back to DefaultCacheMaxEntries.
func NewTTLCache(maxEntries int, defaultTTL time.Duration) *TTLCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &TTLCache{
		store:      make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
	}
}

// Get returns the live value for key. Expired entries are removed on access
// and reported as misses.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.expirations++
		c.misses++
		return nil, false
	}

	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *TTLCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL. Non-positive TTLs
// fall back to the default. Updating an existing key refreshes its expiry and
// recency without triggering eviction.
func (c *TTLCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++

	if entry, ok := c.store[key]; ok {
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		c.moveToFront(entry)
		return
	}

	if len(c.store) >= c.maxEntries {
		c.evictLRU()
	}

	entry := &cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.store[key] = entry
	c.pushFront(entry)
}

// Has reports whether key holds a live value. Unlike Get it neither promotes
// the entry nor counts toward hit statistics.
func (c *TTLCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[key]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.expirations++
		return false
	}
	return true
}

// Delete removes key from the cache.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.store[key]; ok {
		c.removeEntry(entry)
	}
}

// Clear removes every entry and resets the performance counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*cacheEntry)
	c.head = nil
	c.tail = nil
	c.hits = 0
	c.misses = 0
	c.sets = 0
	c.evictions = 0
	c.expirations = 0
}

// Len returns the number of entries currently stored, including any that
// have expired but not yet been swept by a read.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// Stats returns a snapshot of the cache performance counters.
func (c *TTLCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRatio := float64(0)
	if c.hits+c.misses > 0 {
		hitRatio = float64(c.hits) / float64(c.hits+c.misses)
	}

	return CacheStats{
		Size:        len(c.store),
		Capacity:    c.maxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Sets:        c.sets,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRatio:    hitRatio,
	}
}

// LRU chain management. Callers hold c.mu.

func (c *TTLCache) pushFront(entry *cacheEntry) {
	if c.head == nil {
		c.head = entry
		c.tail = entry
		return
	}

	entry.next = c.head
	c.head.prev = entry
	c.head = entry
}

func (c *TTLCache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}

	entry.prev = nil
	entry.next = nil
}

func (c *TTLCache) moveToFront(entry *cacheEntry) {
	if c.head == entry {
		return
	}
	c.unlink(entry)
	c.pushFront(entry)
}

func (c *TTLCache) removeEntry(entry *cacheEntry) {
	delete(c.store, entry.key)
	c.unlink(entry)
}

// evictLRU drops the coldest entry to make room for a new one.
func (c *TTLCache) evictLRU() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.removeEntry(evicted)
	c.evictions++
}
