package dns

import (
	"strings"
	"sync"
	"time"
)

// cacheKey identifies one cache slot (spec §4.8: "Bounded set of
// entries keyed by (name lowercased, type, class)").
type cacheKey struct {
	name  string
	qtype Type
	class Class
}

// entry is one cached resource record plus its insertion time, used
// to compute both TTL expiry and approximate-LRU eviction order (spec
// §3: "DNS cache entry. (name, type, class, ttl, insertion_time,
// data). Expired when now - insertion_time > ttl").
type entry struct {
	rr       ResourceRecord
	insertAt time.Time
}

// Cache is the resolver's answer cache: bounded size, TTL expiry on
// lookup, oldest-insertion eviction on overflow (spec §4.8: "overflow
// evicts by oldest insertion (approximate LRU acceptable)").
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	entries    map[cacheKey]entry
	order      []cacheKey // insertion order, oldest first; approximates LRU

	hits   *counter
	misses *counter
}

// counter is a tiny indirection so Cache can optionally drive
// Prometheus counters without importing pkg/metrics (which would
// create an import cycle, since metrics describes every layer).
type counter struct {
	inc func()
}

func (c *counter) Inc() {
	if c != nil && c.inc != nil {
		c.inc()
	}
}

// NewCache constructs a Cache bounded to maxEntries, using defaultTTL
// for any would-be-zero TTL (a defensive floor; RFC 1035 TTLs are
// normally positive).
func NewCache(maxEntries int, defaultTTL time.Duration) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		entries:    make(map[cacheKey]entry),
	}
}

// OnHit/OnMiss let the resolver wire this cache's hit/miss events into
// pkg/metrics.Stack's DNSCacheHits/DNSCacheMisses counters without this
// package importing prometheus directly.
func (c *Cache) OnHit(fn func())  { c.hits = &counter{inc: fn} }
func (c *Cache) OnMiss(fn func()) { c.misses = &counter{inc: fn} }

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Get returns the cached record for (name, qtype, class), evicting and
// reporting a miss if absent or expired.
func (c *Cache) Get(name string, qtype Type, class Class) (ResourceRecord, bool) {
	key := cacheKey{normalize(name), qtype, class}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses.Inc()
		return ResourceRecord{}, false
	}
	if time.Since(e.insertAt) > ttlDuration(e.rr.TTL, c.defaultTTL) {
		delete(c.entries, key)
		c.misses.Inc()
		return ResourceRecord{}, false
	}
	c.hits.Inc()
	return e.rr, true
}

// Insert records rr under (name, rr.Type, rr.Class), evicting the
// oldest entry first if the cache is at capacity.
func (c *Cache) Insert(name string, rr ResourceRecord) {
	key := cacheKey{normalize(name), rr.Type, rr.Class}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{rr: rr, insertAt: time.Now()}
}

func (c *Cache) evictOldestLocked() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
	}
}

func ttlDuration(ttl uint32, floor time.Duration) time.Duration {
	d := time.Duration(ttl) * time.Second
	if d <= 0 {
		return floor
	}
	return d
}

// Len reports the current entry count, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
