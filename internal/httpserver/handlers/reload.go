package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/utils"
)

type reloadResponse struct {
	Status string `json:"status"`
}

// Reload requests a bookmark import. Requests made while one is pending
// are coalesced.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.BookmarkReload == nil {
			writeError(w, http.StatusServiceUnavailable, "bookmarks are not configured")
			return
		}

		d.BookmarkReload.Trigger()
		d.Logger.Info("manual bookmark reload triggered via endpoint",
			logger.String("remote_ip", utils.ClientIP(r, d.TrustProxy)))
		writeJSON(w, http.StatusAccepted, reloadResponse{Status: "reload triggered"})
	}
}
