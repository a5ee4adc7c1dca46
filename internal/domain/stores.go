package domain

import (
	"context"
	"errors"
)

// The store contracts below follow one convention: (nil, nil) is a miss,
// a non-nil error is a failure. The pipeline treats both the same way.

// ErrNotWritable is returned by stores that cannot persist anything.
var ErrNotWritable = errors.New("store is not writable")

// CacheStore is the cheap, local tier holding previously resolved websites.
type CacheStore interface {
	Get(ctx context.Context, url string) (*Website, error)
	Save(ctx context.Context, website Website) (Website, error)
	Clear(ctx context.Context) error
}

// HistoryStore records visits. Upsert inserts with VisitCount 1 or
// increments the count and refreshes LastVisitedAt of an existing row.
type HistoryStore interface {
	Get(ctx context.Context, url string) (*Website, error)
	Upsert(ctx context.Context, website Website) error
	Search(ctx context.Context, query string, limit int) ([]Website, error)
}

// NetworkStore fetches and parses a live page. It never persists.
type NetworkStore interface {
	Get(ctx context.Context, url string) (*Website, error)
}

// ColorStore maps a host to its resolved accent color.
// Get returns NoColor for unknown hosts.
type ColorStore interface {
	Get(ctx context.Context, host string) (Color, error)
	Save(ctx context.Context, host string, color Color) (WebColor, error)
}

// PaletteExtractor derives a representative color from a website's icon.
type PaletteExtractor interface {
	Extract(ctx context.Context, website Website) (Color, error)
}
