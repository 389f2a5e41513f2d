// Package mru provides a fixed-capacity key/value cache that evicts the entry
// that has gone longest without being read or written.
package mru

import (
	"errors"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

var ErrInvalidCapacity = errors.New("mru: capacity must be at least 1")

// Cache is a bounded most-recently-used cache. It is not safe for concurrent
// use; owners that share one across goroutines must serialise access.
type Cache[K comparable, V any] struct {
	lru       *simplelru.LRU[K, V]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// New returns an empty cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	l, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{lru: l, capacity: capacity}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Set inserts or overwrites key and marks it most recently used. When the
// cache is full and key is new, the least recently used entry is evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	if c.lru.Add(key, value) {
		c.evictions++
	}
}

// Remove deletes key if present. The order of the other entries is unchanged.
func (c *Cache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int { return c.lru.Len() }

// Capacity returns the fixed capacity given to New.
func (c *Cache[K, V]) Capacity() int { return c.capacity }

// Purge removes every entry. Purged entries are not counted as evictions.
func (c *Cache[K, V]) Purge() { c.lru.Purge() }

// Stats returns cumulative hit, miss, and capacity-eviction counts.
func (c *Cache[K, V]) Stats() (hits, misses, evictions uint64) {
	return c.hits, c.misses, c.evictions
}
