// Package memory provides in-process stores. They back the service when
// Redis or SQLite are not configured and double as test fixtures, which is
// why every store counts its calls.
package memory

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// Stats counts the calls a store has served.
type Stats struct {
	Gets    int
	Saves   int
	Upserts int
	Clears  int
}

// Cache is a map-backed domain.CacheStore.
type Cache struct {
	mu       sync.RWMutex
	websites map[string]domain.Website // normalized URL -> Website
	stats    Stats
}

func NewCache() *Cache {
	return &Cache{
		websites: make(map[string]domain.Website),
	}
}

// Get returns the cached website or (nil, nil) on a miss.
func (c *Cache) Get(_ context.Context, url string) (*domain.Website, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Gets++
	w, ok := c.websites[domain.NormalizeURL(url)]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Save replaces the cached value for the website's key.
func (c *Cache) Save(_ context.Context, website domain.Website) (domain.Website, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Saves++
	c.websites[website.Key()] = website
	return website, nil
}

// Clear drops every cached website.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Clears++
	c.websites = make(map[string]domain.Website)
	return nil
}

// Count returns the number of cached websites.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.websites)
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}
