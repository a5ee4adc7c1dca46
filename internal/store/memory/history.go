package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// History is a map-backed domain.HistoryStore. Upserts are atomic under
// the store lock.
type History struct {
	mu       sync.RWMutex
	websites map[string]domain.Website // normalized URL -> Website
	stats    Stats
	now      func() time.Time
}

func NewHistory() *History {
	return &History{
		websites: make(map[string]domain.Website),
		now:      time.Now,
	}
}

// Get returns the recorded website or (nil, nil) when never visited.
func (h *History) Get(_ context.Context, url string) (*domain.Website, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.Gets++
	w, ok := h.websites[domain.NormalizeURL(url)]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Upsert records one visit of website.
func (h *History) Upsert(_ context.Context, website domain.Website) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.Upserts++
	key := website.Key()
	now := h.now()

	existing, ok := h.websites[key]
	if !ok {
		h.websites[key] = newRecord(website, now)
		return nil
	}

	merged := mergeMetadata(existing, website)
	merged.VisitCount = existing.VisitCount + 1
	merged.LastVisitedAt = now
	h.websites[key] = merged
	return nil
}

// Search matches query case-insensitively against URL and title, most
// visited first. An empty query lists everything; limit <= 0 is unbounded.
func (h *History) Search(_ context.Context, query string, limit int) ([]domain.Website, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	results := make([]domain.Website, 0)
	for _, w := range h.websites {
		if needle == "" ||
			strings.Contains(strings.ToLower(w.URL), needle) ||
			strings.Contains(strings.ToLower(w.Title), needle) {
			results = append(results, w)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].VisitCount != results[j].VisitCount {
			return results[i].VisitCount > results[j].VisitCount
		}
		if !results[i].LastVisitedAt.Equal(results[j].LastVisitedAt) {
			return results[i].LastVisitedAt.After(results[j].LastVisitedAt)
		}
		return results[i].URL < results[j].URL
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ReplaceBookmarks flags exactly the given websites as bookmarked. Missing
// rows are created without counting a visit.
func (h *History) ReplaceBookmarks(_ context.Context, websites []domain.Website) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, w := range h.websites {
		if w.Bookmarked {
			w.Bookmarked = false
			h.websites[key] = w
		}
	}

	now := h.now()
	for _, website := range websites {
		key := website.Key()
		existing, ok := h.websites[key]
		if !ok {
			existing = newRecord(website, now)
		} else {
			existing = mergeMetadata(existing, website)
		}
		existing.Bookmarked = true
		h.websites[key] = existing
	}
	return len(websites), nil
}

// Prune removes non-bookmarked websites last visited before cutoff.
func (h *History) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed int64
	for key, w := range h.websites {
		if !w.Bookmarked && w.LastVisitedAt.Before(cutoff) {
			delete(h.websites, key)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of recorded websites.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.websites)
}

func (h *History) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.stats
}

func newRecord(website domain.Website, now time.Time) domain.Website {
	record := website
	record.VisitCount = 1
	record.LastVisitedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	return record
}

// mergeMetadata overlays the non-empty metadata of incoming onto existing.
// Identity, counters and the bookmark flag stay with existing.
func mergeMetadata(existing, incoming domain.Website) domain.Website {
	merged := existing
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.CanonicalURL != "" {
		merged.CanonicalURL = incoming.CanonicalURL
	}
	if incoming.AmpURL != "" {
		merged.AmpURL = incoming.AmpURL
	}
	if incoming.FaviconURL != "" {
		merged.FaviconURL = incoming.FaviconURL
	}
	if incoming.ThemeColor.Valid() {
		merged.ThemeColor = incoming.ThemeColor
	}
	return merged
}
