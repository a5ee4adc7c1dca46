package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

// ClearCache answers DELETE /api/cache.
func ClearCache(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Resolver.ClearCache(r.Context()); err != nil {
			d.Logger.Error("failed to clear cache", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to clear cache")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
