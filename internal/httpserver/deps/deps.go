package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

// Resolver is the website side of the service. *resolver.Pipeline
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, mode domain.Mode) domain.Website
	Search(ctx context.Context, query string, limit int) []domain.Website
	ClearCache(ctx context.Context) error
}

// Colors is the color side of the service. *colors.Chain satisfies it.
type Colors interface {
	ResolveColorSync(ctx context.Context, rawURL string) domain.Color
	ResolveColor(ctx context.Context, website domain.Website) domain.WebColor
}

// Trigger requests an asynchronous reload.
type Trigger interface {
	Trigger()
}

// Check reports whether a backing component is usable.
type Check func(ctx context.Context) error

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	AllowedCIDRS []string // IPs allowed on admin routes (cache, reload, readyz)
	TrustProxy   bool     // true if running behind a trusted reverse proxy

	Resolver Resolver
	Colors   Colors

	BookmarkReload Trigger          // nil when bookmarks are disabled
	Checks         map[string]Check // readiness checks by component name
	CheckTimeout   time.Duration

	// APILimit throttles the /api routes. Nil means unlimited.
	APILimit func(http.Handler) http.Handler
}
