// Package cache is the read-through cache in front of product listings and
// source statistics. The database status column stays authoritative; cached
// responses are dropped whenever a mutation fires an invalidation signal.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ProductsPrefix = "products:"
	StatsPrefix    = "stats:"
)

type entry struct {
	value   any
	expires time.Time
}

// InMemoryCache is a concurrent-safe key-value store with optional expiry.
type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time

	// gens counts invalidations per key or prefix. A load that raced one
	// of them must not be stored.
	gens map[string]uint64
}

// NewInMemoryCache creates a cache. A zero ttl keeps entries until invalidated.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		items: make(map[string]entry),
		gens:  make(map[string]uint64),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value and true if the key exists and has not expired.
func (c *InMemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, found := c.items[key]
	if !found || (!e.expires.IsZero() && c.now().After(e.expires)) {
		return nil, false
	}
	return e.value, true
}

// Set adds or updates a value in the cache.
func (c *InMemoryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *InMemoryCache) setLocked(key string, value any) {
	e := entry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.items[key] = e
}

// Delete removes a value from the cache.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.items, key)
}

// DeletePrefix removes every key starting with prefix and returns how many went.
func (c *InMemoryCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[prefix]++
	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Errors are not cached, and neither is a result whose key was
// invalidated while load ran: that read may predate the mutation.
func (c *InMemoryCache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.RLock()
	gen := c.generationLocked(key)
	c.mu.RUnlock()

	v, err := load()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generationLocked(key) == gen {
		c.setLocked(key, v)
	} else {
		log.Debug().Str("key", key).Msg("Discarding load raced by invalidation")
	}
	return v, nil
}

// generationLocked sums the counters of every invalidation that covers key.
// Counters only grow, so an unchanged sum means nothing touched key.
func (c *InMemoryCache) generationLocked(key string) uint64 {
	var g uint64
	for prefix, n := range c.gens {
		if strings.HasPrefix(key, prefix) {
			g += n
		}
	}
	return g
}

// Invalidator turns curation refresh signals into cache evictions. The two
// channels are independent: a listing refresh leaves statistics cached.
type Invalidator struct {
	cache *InMemoryCache
}

func NewInvalidator(c *InMemoryCache) *Invalidator {
	return &Invalidator{cache: c}
}

func (i *Invalidator) RefreshProducts() {
	n := i.cache.DeletePrefix(ProductsPrefix)
	log.Debug().Int("evicted", n).Msg("Product listing cache invalidated")
}

func (i *Invalidator) RefreshSourceStats() {
	n := i.cache.DeletePrefix(StatsPrefix)
	log.Debug().Int("evicted", n).Msg("Source statistics cache invalidated")
}
