package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
)

// requestTarget reads the url and mode query parameters shared by the
// resolution endpoints.
func requestTarget(r *http.Request) (string, domain.Mode, string) {
	q := r.URL.Query()
	rawURL := strings.TrimSpace(q.Get("url"))
	if rawURL == "" {
		return "", domain.Persisting, "missing url parameter"
	}
	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		return "", domain.Persisting, err.Error()
	}
	return rawURL, mode, ""
}

// Resolve answers GET /api/resolve?url=&mode= with the resolved Website.
// Resolution never fails; an unknown site yields the fallback Website.
func Resolve(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL, mode, problem := requestTarget(r)
		if problem != "" {
			writeError(w, http.StatusBadRequest, problem)
			return
		}

		writeJSON(w, http.StatusOK, d.Resolver.Resolve(r.Context(), rawURL, mode))
	}
}
