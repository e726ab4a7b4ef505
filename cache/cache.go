// Package cache keeps recent fetch responses in memory so a page linked
// from many places is fetched once per run.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

type entry struct {
	response  models.FetchResponse
	createdAt time.Time
}

// Cache maps URLs to fetch responses. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses for ttl each.
// A background goroutine drops expired entries every ttl/4 until Close.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop(ttl / 4)
	return c
}

// Key normalizes a URL for lookup. Only surrounding space is removed;
// URLs differing in any other way are different pages.
func Key(url string) string {
	return strings.TrimSpace(url)
}

// Get returns a copy of the cached response for url if it has not expired.
func (c *Cache) Get(url string) (*models.FetchResponse, bool) {
	c.mu.RLock()
	e, ok := c.store[Key(url)]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil, false
	}
	resp := e.response
	return &resp, true
}

// GetFresh is Get restricted to entries younger than maxAge. maxAge <= 0
// never hits.
func (c *Cache) GetFresh(url string, maxAge time.Duration) (*models.FetchResponse, bool) {
	if maxAge <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.store[Key(url)]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if age := c.now().Sub(e.createdAt); age > maxAge || age > c.ttl {
		return nil, false
	}
	resp := e.response
	return &resp, true
}

// Set stores a copy of resp under url. When full, the oldest entry is
// evicted.
func (c *Cache) Set(url string, resp *models.FetchResponse) {
	if resp == nil {
		return
	}
	key := Key(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}
	c.store[key] = &entry{response: *resp, createdAt: c.now()}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}
