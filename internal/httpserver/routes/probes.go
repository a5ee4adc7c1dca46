package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/mw"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
)

func init() { Register(registerProbes) }

func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	admin.Get("/readyz", handlers.Readyz(d))
	admin.Method("GET", "/metrics", metrics.Handler())
}
