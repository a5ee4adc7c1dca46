package domain

import "time"

// Website is the resolved metadata of a single URL.
//
// Values are handed to callers by copy and never mutated afterwards.
// Updates are expressed as new values written back to the stores.
type Website struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// URL is the key the caller asked for.
	URL string `json:"url"`

	// CanonicalURL is the page's declared canonical address (may be empty).
	CanonicalURL string `json:"canonical_url,omitempty"`

	// AmpURL is the page's declared AMP alternate (may be empty).
	AmpURL string `json:"amp_url,omitempty"`

	// ─────────────────────────────
	// Presentation
	// ─────────────────────────────

	// Title is the page title (may be empty).
	Title string `json:"title,omitempty"`

	// FaviconURL references the page icon (may be empty).
	FaviconURL string `json:"favicon_url,omitempty"`

	// ThemeColor is the declared theme color. NoColor means absent.
	ThemeColor Color `json:"theme_color"`

	// ─────────────────────────────
	// History
	// ─────────────────────────────

	// Bookmarked marks URLs imported from a bookmark source.
	Bookmarked bool `json:"bookmarked"`

	// CreatedAt is the time of the first resolution.
	CreatedAt time.Time `json:"created_at"`

	// LastVisitedAt is refreshed on every recorded visit.
	LastVisitedAt time.Time `json:"last_visited_at"`

	// VisitCount is >= 1 and never decreases for a given normalized URL.
	VisitCount int64 `json:"visit_count"`
}

// FallbackWebsite is the identity echo returned when every tier misses.
func FallbackWebsite(url string) Website {
	return Website{
		URL:        url,
		ThemeColor: NoColor,
		VisitCount: 1,
	}
}

// PreferredURL returns the canonical URL when known, the requested URL otherwise.
func (w Website) PreferredURL() string {
	if w.CanonicalURL != "" {
		return w.CanonicalURL
	}
	return w.URL
}

// SafeLabel returns a non-empty label suitable for display.
func (w Website) SafeLabel() string {
	if w.Title != "" {
		return w.Title
	}
	return w.PreferredURL()
}

// Key is the normalized store key of the website.
func (w Website) Key() string {
	return NormalizeURL(w.URL)
}

// IsFallback reports whether w carries nothing beyond the identity echo.
func (w Website) IsFallback() bool {
	return w.CanonicalURL == "" && w.AmpURL == "" && w.Title == "" &&
		w.FaviconURL == "" && !w.ThemeColor.Valid() && !w.Bookmarked &&
		w.CreatedAt.IsZero()
}
