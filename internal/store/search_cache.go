// Package store provides a short-lived search result cache using a Bloom filter and an expiring LRU.
package store

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"tunefetch/pkg/audiolink"
)

// bloomRebuildFactor controls how many insertions the filter absorbs,
// relative to the capacity, before it is rebuilt from the live keys.
const bloomRebuildFactor = 4

// SearchCache holds recent search results keyed by folded query.
// The Bloom filter answers most misses without touching the LRU.
type SearchCache struct {
	lru                    *expirable.LRU[string, []audiolink.SearchResult]
	bloom                  *bloom.BloomFilter
	mutex                  sync.RWMutex
	maxEntries             int
	insertions             int
	bloomFalsePositiveRate float64
}

// NewSearchCache creates a cache holding at most maxEntries queries for ttl each.
func NewSearchCache(maxEntries int, ttl time.Duration, bloomFalsePositiveRate float64) *SearchCache {
	if maxEntries <= 0 {
		panic("maxEntries must be positive")
	}

	return &SearchCache{
		lru:                    expirable.NewLRU[string, []audiolink.SearchResult](maxEntries, nil, ttl),
		bloom:                  bloom.NewWithEstimates(uint(maxEntries), bloomFalsePositiveRate),
		maxEntries:             maxEntries,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// Get returns cached results for key, if present and not expired.
func (c *SearchCache) Get(key string) ([]audiolink.SearchResult, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.bloom.TestString(key) {
		return nil, false
	}

	return c.lru.Get(key)
}

// Add stores results for key.
func (c *SearchCache) Add(key string, results []audiolink.SearchResult) {
	if key == "" {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lru.Add(key, results)
	c.bloom.AddString(key)
	c.insertions++

	if c.insertions > c.maxEntries*bloomRebuildFactor {
		c.rebuildBloom()
	}
}

// Size returns the number of live entries.
func (c *SearchCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lru.Len()
}

// Clear removes every entry.
func (c *SearchCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lru.Purge()
	c.bloom = bloom.NewWithEstimates(uint(c.maxEntries), c.bloomFalsePositiveRate)
	c.insertions = 0
}

// rebuildBloom drops evicted keys from the filter, which does not support removal.
func (c *SearchCache) rebuildBloom() {
	keys := c.lru.Keys()
	c.bloom = bloom.NewWithEstimates(uint(c.maxEntries), c.bloomFalsePositiveRate)
	for _, key := range keys {
		c.bloom.AddString(key)
	}
	c.insertions = len(keys)
}
