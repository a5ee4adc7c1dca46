package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/mw"
)

func init() { Register(registerAdmin) }

func registerAdmin(r chi.Router, d deps.Deps) {
	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	admin.Delete("/api/cache", handlers.ClearCache(d))
	admin.Post("/reload", handlers.Reload(d))
}
