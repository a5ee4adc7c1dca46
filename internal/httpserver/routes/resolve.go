package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/handlers"
)

func init() { Register(registerResolve) }

func registerResolve(r chi.Router, d deps.Deps) {
	api := r.With(apiLimit(d))
	api.Get("/api/resolve", handlers.Resolve(d))
	api.Get("/api/history/search", handlers.SearchHistory(d))
}
