// Package cache holds rendered registry responses in memory so repeated reads
// do not re-parse the markdown documents.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type item struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRUCache is a thread-safe cache bounded by size and TTL. The least recently
// used entry is evicted when it is full; expired entries are dropped on Get.
type LRUCache struct {
	mu      sync.Mutex
	order   *list.List // front is most recently used
	items   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRUCache{
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	it := el.Value.(*item)
	if !c.now().Before(it.expiresAt) {
		c.remove(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return it.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item)
		it.value = value
		it.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		c.remove(c.order.Back())
	}
	c.items[key] = c.order.PushFront(&item{key: key, value: value, expiresAt: expiresAt})
}

// InvalidateAll removes every entry.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Len returns the number of entries, including expired ones not yet dropped.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must be called with c.mu held.
func (c *LRUCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item).key)
}
