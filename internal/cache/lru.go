package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRUCache is a thread-safe LRU cache for thumbnail data, bounded both by
// entry count and by total bytes.
type LRUCache struct {
	lru     *simplelru.LRU[string, []byte]
	size    int64
	maxSize int64 // max size in bytes
	mu      sync.Mutex
}

// NewLRUCache creates a new LRU cache with the specified capacity and max size in bytes
func NewLRUCache(capacity int, maxSizeBytes int64) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &LRUCache{maxSize: maxSizeBytes}
	// Only fails on a non-positive size.
	c.lru, _ = simplelru.NewLRU[string, []byte](capacity, c.onEvict)
	return c
}

// onEvict runs with c.mu held.
func (c *LRUCache) onEvict(_ string, data []byte) {
	c.size -= int64(len(data))
}

// Get retrieves an item from the cache
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Set adds or updates an item in the cache
func (c *LRUCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dataSize := int64(len(data))

	// If single item is larger than max size, don't cache it
	if dataSize > c.maxSize {
		return
	}

	// Drop the previous value first so its bytes leave the budget.
	c.lru.Remove(key)

	for c.size+dataSize > c.maxSize && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	c.lru.Add(key, data)
	c.size += dataSize
}

// Delete removes an item from the cache
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes all items from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.size = 0
}

// Len returns the number of items in the cache
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the current size in bytes
func (c *LRUCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
