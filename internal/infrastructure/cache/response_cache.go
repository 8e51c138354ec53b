package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// ResponseCache is a bounded LRU cache with per-entry TTL, keyed by
// normalized query text plus optional domain hint. It is the only state
// shared across concurrent requests.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
	now      func() time.Time
}

type cacheEntry struct {
	key      string
	answer   *domain.Answer
	storedAt time.Time
}

func NewResponseCache(capacity int, ttl time.Duration) *ResponseCache {
	if capacity <= 0 {
		capacity = 128
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResponseCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached answer when present and not expired. Expired
// entries are evicted on access.
func (c *ResponseCache) Get(query, domainHint string) (*domain.Answer, bool) {
	key := cacheKey(query, domainHint)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.answer, true
}

// Set stores the answer, evicting the least-recently-used entry at capacity.
// Fallback and out-of-scope answers are rejected.
func (c *ResponseCache) Set(query, domainHint string, answer *domain.Answer) {
	if !answer.Cacheable() {
		return
	}
	key := cacheKey(query, domainHint)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.answer = answer
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		c.removeLocked(c.order.Back())
	}

	elem := c.order.PushFront(&cacheEntry{key: key, answer: answer, storedAt: c.now()})
	c.entries[key] = elem
}

// Reset empties the cache. Intended for test isolation.
func (c *ResponseCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len reports the number of live entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *ResponseCache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

func cacheKey(query, domainHint string) string {
	return normalizeQuery(query) + "|" + strings.ToLower(strings.TrimSpace(domainHint))
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
