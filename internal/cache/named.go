package cache

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// namedCache holds the counters of one cache and, for the in-process
// backend, its recency index. The front of order is least recently used.
type namedCache struct {
	name    Name
	maxSize int
	ttl     time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

func newNamedCache(name Name, cfg TierConfig) *namedCache {
	return &namedCache{
		name:    name,
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func (c *namedCache) hit() {
	c.hits.Add(1)
	cacheHits.WithLabelValues(string(c.name)).Inc()
}

func (c *namedCache) miss() {
	c.misses.Add(1)
	cacheMisses.WithLabelValues(string(c.name)).Inc()
}

// touch marks key as most recently used.
func (c *namedCache) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.MoveToBack(el)
	}
}

// admit records key as most recently used and returns the keys evicted to
// keep the index within maxSize.
func (c *namedCache) admit(key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToBack(el)
		return nil
	}

	var evicted []string
	for c.order.Len() >= c.maxSize && c.order.Len() > 0 {
		oldest := c.order.Front()
		victim := oldest.Value.(string)
		c.order.Remove(oldest)
		delete(c.index, victim)
		evicted = append(evicted, victim)
		cacheEvictions.WithLabelValues(string(c.name)).Inc()
	}
	c.index[key] = c.order.PushBack(key)
	cacheEntries.WithLabelValues(string(c.name)).Set(float64(c.order.Len()))
	return evicted
}

func (c *namedCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
		cacheEntries.WithLabelValues(string(c.name)).Set(float64(c.order.Len()))
	}
}

func (c *namedCache) forgetPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.index {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.index, key)
		}
	}
	cacheEntries.WithLabelValues(string(c.name)).Set(float64(c.order.Len()))
}

func (c *namedCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.index)
	cacheEntries.WithLabelValues(string(c.name)).Set(0)
}

// keys returns the tracked keys, least recently used first.
func (c *namedCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

func (c *namedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *namedCache) stats() TierStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return TierStats{
		Name:    c.name,
		Size:    c.size(),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}
