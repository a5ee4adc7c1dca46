package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
)

type searchResponse struct {
	Query   string           `json:"query"`
	Results []domain.Website `json:"results"`
}

// SearchHistory answers GET /api/history/search?q=&limit=.
func SearchHistory(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := strings.TrimSpace(q.Get("q"))

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		writeJSON(w, http.StatusOK, searchResponse{
			Query:   query,
			Results: d.Resolver.Search(r.Context(), query, limit),
		})
	}
}
