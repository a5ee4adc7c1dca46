package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/colors"
	"github.com/MrSnakeDoc/sitemeta/internal/config"
	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/fetcher"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver"
	"github.com/MrSnakeDoc/sitemeta/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
	"github.com/MrSnakeDoc/sitemeta/internal/palette"
	"github.com/MrSnakeDoc/sitemeta/internal/redis"
	"github.com/MrSnakeDoc/sitemeta/internal/resolver"
	"github.com/MrSnakeDoc/sitemeta/internal/scheduler"
	"github.com/MrSnakeDoc/sitemeta/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/sitemeta/internal/store/redis"
	"github.com/MrSnakeDoc/sitemeta/internal/store/sqlite"
	"github.com/MrSnakeDoc/sitemeta/internal/supervisor"
	"github.com/MrSnakeDoc/sitemeta/internal/utils"
	"github.com/MrSnakeDoc/sitemeta/internal/version"
)

// historyStore is what the app needs from a history backend beyond the
// resolver contract.
type historyStore interface {
	domain.HistoryStore
	scheduler.BookmarkStore
	scheduler.PruneStore
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg        *config.Config
	logger     logger.Logger
	supervisor *supervisor.Supervisor
	pipeline   *resolver.Pipeline
	colors     *colors.Chain
	importer   *scheduler.BookmarkImporter
	pruner     *scheduler.HistoryPruner
	checks     map[string]deps.Check
	closers    []namedCloser
	startTime  time.Time
}

// New connects the stores and builds the resolution stack. ctx bounds the
// Redis connection attempts only.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	metrics.Init()

	a := &App{
		cfg:       cfg,
		logger:    log,
		checks:    make(map[string]deps.Check),
		startTime: time.Now(),
	}

	a.supervisor = supervisor.New(supervisor.Options{
		IOWorkers:   int64(cfg.Resolver.IOWorkers),
		CPUWorkers:  int64(cfg.Resolver.CPUWorkers),
		TaskTimeout: cfg.Resolver.NetworkTimeout + cfg.Fetcher.Timeout + cfg.Resolver.WriteTimeout,
	}, log.Named("supervisor"))

	cache, colorStore, err := a.openRedisStores(ctx)
	if err != nil {
		return nil, err
	}

	history, err := a.openHistory()
	if err != nil {
		a.closeStores()
		return nil, err
	}

	network := fetcher.New(fetcher.Config{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout,
		MaxIconBytes: cfg.Fetcher.MaxIconBytes,
	}, log)

	a.pipeline = resolver.New(resolver.Stores{
		Cache:   cache,
		History: history,
		Network: network,
	}, a.supervisor, resolver.Options{
		NetworkTimeout: cfg.Resolver.NetworkTimeout,
		WriteTimeout:   cfg.Resolver.WriteTimeout,
	}, log)

	extractor := palette.NewIconExtractor(network, a.supervisor)
	a.colors = colors.New(colorStore, extractor, a.pipeline, a.supervisor, colors.Options{
		LookupTimeout: cfg.Colors.LookupTimeout,
	}, log)

	if cfg.Bookmarks.File != "" {
		a.importer = scheduler.NewBookmarkImporter(cfg.Bookmarks.File, history, log, cfg.Bookmarks.ReloadInterval)
	}
	if cfg.History.Retention > 0 {
		a.pruner = scheduler.NewHistoryPruner(history, log, cfg.History.PruneInterval, cfg.History.Retention)
	}

	return a, nil
}

func (a *App) openRedisStores(ctx context.Context) (domain.CacheStore, domain.ColorStore, error) {
	if !a.cfg.Redis.Enabled {
		a.logger.Info("redis disabled, cache and colors kept in memory")
		return memory.NewCache(), memory.NewColors(), nil
	}

	client, err := redis.New(ctx, redis.OptionsFromConfig(a.cfg.Redis), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, namedCloser{name: "redis", c: client})

	store := redisstore.NewStore(client, a.cfg.Cache.TTL)
	a.checks["redis"] = store.Ping
	return store, redisstore.NewColorStore(client), nil
}

func (a *App) openHistory() (historyStore, error) {
	if a.cfg.History.Path == "" {
		a.logger.Info("history path not set, history kept in memory")
		return memory.NewHistory(), nil
	}

	history, err := sqlite.Open(a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	a.closers = append(a.closers, namedCloser{name: "history", c: history})
	a.checks["history"] = history.Ping
	a.logger.Info("history opened", logger.String("path", a.cfg.History.Path))
	return history, nil
}

func (a *App) Pipeline() *resolver.Pipeline {
	return a.pipeline
}

func (a *App) Colors() *colors.Chain {
	return a.colors
}

// Run serves HTTP and runs the schedulers until ctx is cancelled, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting sitemeta",
		logger.String("version", version.Version),
		logger.String("commit", version.Commit),
		logger.String("built", version.BuildDate),
		logger.String("go", version.GoVersion),
		logger.String("listen", a.cfg.Server.Listen))

	if a.importer != nil {
		if err := a.importer.Start(ctx); err != nil {
			a.logger.Warn("bookmarks unavailable until the next reload", logger.Error(err))
		}
		a.logger.Info("bookmark importer started",
			logger.String("file", a.cfg.Bookmarks.File),
			logger.Duration("interval", a.cfg.Bookmarks.ReloadInterval))
	}
	if a.pruner != nil {
		a.pruner.Start(ctx)
		a.logger.Info("history pruner started",
			logger.Duration("interval", a.cfg.History.PruneInterval),
			logger.Duration("retention", a.cfg.History.Retention))
	}

	server := httpserver.New(a.cfg, a.logger, a.deps())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		a.logger.Warn("background work abandoned at shutdown", logger.Error(err))
	}

	a.logger.Info("sitemeta stopped")
	return runErr
}

func (a *App) deps() deps.Deps {
	d := deps.Deps{
		Logger:       a.logger,
		StartTime:    a.startTime,
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		AllowedCIDRS: a.cfg.Access.AllowedCIDRs,
		TrustProxy:   a.cfg.Access.TrustProxy,
		Resolver:     a.pipeline,
		Colors:       a.colors,
		Checks:       a.checks,
	}
	if a.importer != nil {
		d.BookmarkReload = a.importer
	}
	return d
}

// Close stops the schedulers, drains pending write-backs until ctx expires
// and closes the stores. It returns the drain error, if any.
func (a *App) Close(ctx context.Context) error {
	if a.importer != nil {
		a.importer.Stop()
	}
	if a.pruner != nil {
		a.pruner.Stop()
	}

	err := a.supervisor.Shutdown(ctx)
	a.closeStores()
	_ = a.logger.Sync()
	return err
}

func (a *App) closeStores() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		utils.CloseLogged(a.logger, a.closers[i].name, a.closers[i].c)
	}
	a.closers = nil
}
