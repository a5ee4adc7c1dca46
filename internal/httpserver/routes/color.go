package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/handlers"
)

func init() { Register(registerColor) }

func registerColor(r chi.Router, d deps.Deps) {
	api := r.With(apiLimit(d))
	api.Get("/api/color", handlers.Color(d))
	api.Post("/api/color/resolve", handlers.ResolveColor(d))
}
