package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/sitemeta/internal/config"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/mw"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/routes"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http    *http.Server
	handler http.Handler
	logger  logger.Logger
	started time.Time
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	if d.APILimit == nil {
		d.APILimit = mw.RateLimit(mw.RateLimitConfig{
			RPS:        cfg.RateLimit.RPS,
			Burst:      cfg.RateLimit.Burst,
			MaxEntries: 10000,
			TrustProxy: cfg.Access.TrustProxy,
		})
	}

	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout(cfg)))
	r.Use(mw.Log(loggerClient.Named("http")))

	routes.RegisterAll(r, d)

	s := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout(cfg) + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:    s,
		handler: r,
		logger:  loggerClient,
		started: d.StartTime,
	}
}

// requestTimeout leaves room for a network lookup followed by an icon
// download on POST /api/color/resolve.
func requestTimeout(cfg *config.Config) time.Duration {
	return cfg.Resolver.NetworkTimeout + cfg.Fetcher.Timeout + 2*time.Second
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", logger.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
