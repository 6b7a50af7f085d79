package enrich

import (
	"sync"
	"time"
)

type cacheEntry struct {
	summary   string
	fetchedAt time.Time
}

// summaryCache caches produced summaries by URL with a TTL and an LRU cap.
type summaryCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string // LRU order, oldest first
}

func newSummaryCache(ttl time.Duration, maxEntries int) *summaryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &summaryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
	}
}

func (c *summaryCache) get(url string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return "", false
	}
	if now.Sub(entry.fetchedAt) > c.ttl {
		delete(c.entries, url)
		c.removeOrderLocked(url)
		return "", false
	}
	c.removeOrderLocked(url)
	c.order = append(c.order, url)
	return entry.summary, true
}

func (c *summaryCache) put(url, summary string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[url]; ok {
		c.removeOrderLocked(url)
	} else if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[url] = cacheEntry{summary: summary, fetchedAt: now}
	c.order = append(c.order, url)
}

func (c *summaryCache) removeOrderLocked(url string) {
	for i, u := range c.order {
		if u == url {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
