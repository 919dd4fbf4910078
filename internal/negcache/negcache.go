// Package negcache implements the short-TTL negative-result cache:
// a time-expiring set of artifact paths known to have failed on every
// configured upstream, so repeated misses for the same path don't re-race
// upstreams inside the TTL window.
package negcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultCapacity bounds memory use; entries are evicted by TTL well
// before this would matter for any reasonably sized repository, but an
// unbounded cache under a pathological crawl could otherwise grow
// forever between evictions.
const defaultCapacity = 65536

// Cache is a thread-safe, TTL-expiring set of failed paths. Membership
// only; no values are stored. Safe for concurrent IsFailed/MarkFailed.
type Cache struct {
	lru *expirable.LRU[string, struct{}]
}

// New builds a Cache whose entries expire ttl after insertion. ttl is
// read once and fixed for the life of the Cache.
func New(ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, struct{}](defaultCapacity, nil, ttl),
	}
}

// IsFailed reports whether path was marked failed within the last TTL.
func (c *Cache) IsFailed(path string) bool {
	_, ok := c.lru.Get(path)
	return ok
}

// MarkFailed records path as failed as of now.
func (c *Cache) MarkFailed(path string) {
	c.lru.Add(path, struct{}{})
}

// Len reports the current number of live (non-expired) entries. Exposed
// for diagnostics/tests only.
func (c *Cache) Len() int {
	return c.lru.Len()
}
