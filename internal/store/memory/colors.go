package memory

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// Colors is a map-backed domain.ColorStore keyed by host.
type Colors struct {
	mu     sync.RWMutex
	colors map[string]domain.Color
	stats  Stats
}

func NewColors() *Colors {
	return &Colors{
		colors: make(map[string]domain.Color),
	}
}

// Get returns NoColor for unknown hosts.
func (c *Colors) Get(_ context.Context, host string) (domain.Color, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Gets++
	color, ok := c.colors[host]
	if !ok {
		return domain.NoColor, nil
	}
	return color, nil
}

// Save records color for host. Saving a non-concrete color forgets the host.
func (c *Colors) Save(_ context.Context, host string, color domain.Color) (domain.WebColor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Saves++
	if !color.Valid() {
		delete(c.colors, host)
		return domain.WebColor{Host: host, Color: domain.NoColor}, nil
	}
	c.colors[host] = color
	return domain.WebColor{Host: host, Color: color}, nil
}

func (c *Colors) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}
