package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
)

// Color answers GET /api/color?url= from the color store only. An unknown
// color is null and a backfill is scheduled.
func Color(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
		if rawURL == "" {
			writeError(w, http.StatusBadRequest, "missing url parameter")
			return
		}

		color := d.Colors.ResolveColorSync(r.Context(), rawURL)
		writeJSON(w, http.StatusOK, domain.WebColor{Host: domain.Host(rawURL), Color: color})
	}
}

type colorResolution struct {
	domain.WebColor
	Website domain.Website `json:"website"`
}

// ResolveColor answers POST /api/color/resolve?url=&mode= by resolving the
// website and running the full color chain on it.
func ResolveColor(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL, mode, problem := requestTarget(r)
		if problem != "" {
			writeError(w, http.StatusBadRequest, problem)
			return
		}

		website := d.Resolver.Resolve(r.Context(), rawURL, mode)
		wc := d.Colors.ResolveColor(r.Context(), website)
		writeJSON(w, http.StatusOK, colorResolution{WebColor: wc, Website: website})
	}
}
