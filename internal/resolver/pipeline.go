// Package resolver turns a URL into a Website by consulting the cache,
// history and network tiers in that order, and keeps the tiers converging
// through asynchronous write-backs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
	"github.com/MrSnakeDoc/sitemeta/internal/supervisor"
)

const (
	tierCache   = "cache"
	tierHistory = "history"
	tierNetwork = "network"
	sourceNone  = "fallback"

	// DefaultSearchLimit applies when a search does not ask for a limit.
	DefaultSearchLimit = 20
	// MaxSearchLimit caps any requested limit.
	MaxSearchLimit = 100
)

var errKeyMismatch = errors.New("stored website does not match the requested key")

// Runner schedules write-backs and bounds concurrent reads.
// *supervisor.Supervisor satisfies it.
type Runner interface {
	Enqueue(key, name string, fn supervisor.Task) bool
	IO(ctx context.Context, fn func(ctx context.Context) error) error
}

type Stores struct {
	Cache   domain.CacheStore
	History domain.HistoryStore
	Network domain.NetworkStore
}

type Options struct {
	NetworkTimeout time.Duration // bound on a single network lookup
	WriteTimeout   time.Duration // bound on a single write-back
}

// Pipeline resolves websites. It is safe for concurrent use.
type Pipeline struct {
	cache   domain.CacheStore
	history domain.HistoryStore
	network domain.NetworkStore
	runner  Runner
	opts    Options
	log     logger.Logger
}

func New(stores Stores, runner Runner, opts Options, log logger.Logger) *Pipeline {
	if opts.NetworkTimeout <= 0 {
		opts.NetworkTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if stores.Cache == nil {
		stores.Cache = missStore{}
	}
	if stores.History == nil {
		stores.History = missStore{}
	}
	if stores.Network == nil {
		stores.Network = missStore{}
	}
	return &Pipeline{
		cache:   stores.Cache,
		history: stores.History,
		network: stores.Network,
		runner:  runner,
		opts:    opts,
		log:     log.Named("resolver"),
	}
}

// Resolve returns the best known Website for rawURL. It never fails: tier
// errors degrade to misses and a total miss yields the fallback Website.
//
// In Persisting mode every resolution records a visit and promotes the
// value into faster tiers. ReadOnly never writes the history; a network
// result is still cached.
func (p *Pipeline) Resolve(ctx context.Context, rawURL string, mode domain.Mode) domain.Website {
	key := domain.NormalizeURL(rawURL)
	if key == "" {
		metrics.ObserveResolution(sourceNone, mode.String())
		return domain.FallbackWebsite(rawURL)
	}
	persist := mode == domain.Persisting

	if w, ok := p.lookup(ctx, tierCache, key, key, p.cache.Get); ok {
		if persist {
			p.writeBack(key, w, p.upsertHistoryOp())
		}
		metrics.ObserveResolution(tierCache, mode.String())
		return w
	}

	if w, ok := p.lookup(ctx, tierHistory, key, key, p.history.Get); ok {
		if persist {
			p.writeBack(key, w, p.upsertHistoryOp(), p.saveCacheOp())
		}
		metrics.ObserveResolution(tierHistory, mode.String())
		return w
	}

	netCtx, cancel := context.WithTimeout(ctx, p.opts.NetworkTimeout)
	w, ok := p.lookup(netCtx, tierNetwork, key, strings.TrimSpace(rawURL), p.network.Get)
	cancel()
	if ok {
		if persist {
			p.writeBack(key, w, p.saveCacheOp(), p.upsertHistoryOp())
		} else {
			p.writeBack(key, w, p.saveCacheOp())
		}
		metrics.ObserveResolution(tierNetwork, mode.String())
		return w
	}

	metrics.ObserveResolution(sourceNone, mode.String())
	return domain.FallbackWebsite(rawURL)
}

type getFunc func(ctx context.Context, url string) (*domain.Website, error)

type lookupResult struct {
	website *domain.Website
	err     error
}

// lookup queries one tier under an IO slot. It reports ok only for a valid
// hit; errors, panics, timeouts and malformed values are logged and
// counted as failures.
func (p *Pipeline) lookup(ctx context.Context, tier, key, target string, get getFunc) (domain.Website, bool) {
	start := time.Now()

	var found *domain.Website
	err := p.runner.IO(ctx, func(ctx context.Context) error {
		ch := make(chan lookupResult, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- lookupResult{err: fmt.Errorf("%s store panicked: %v", tier, r)}
				}
			}()
			w, err := get(ctx, target)
			ch <- lookupResult{website: w, err: err}
		}()

		select {
		case res := <-ch:
			found = res.website
			return res.err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err == nil && found != nil {
		var validated domain.Website
		validated, err = validate(key, *found)
		if err == nil {
			metrics.ObserveTierLookup(tier, metrics.OutcomeHit, time.Since(start))
			return validated, true
		}
	}

	if err != nil {
		metrics.ObserveTierLookup(tier, metrics.OutcomeFailure, time.Since(start))
		p.log.Warn("tier lookup failed, treating as miss",
			logger.String("tier", tier),
			logger.String("url", key),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return domain.Website{}, false
	}

	metrics.ObserveTierLookup(tier, metrics.OutcomeMiss, time.Since(start))
	return domain.Website{}, false
}

// validate checks a stored value against the key it was found under.
func validate(key string, w domain.Website) (domain.Website, error) {
	if got := w.Key(); got != key {
		return domain.Website{}, fmt.Errorf("%w: got %q", errKeyMismatch, got)
	}
	if w.VisitCount < 1 {
		w.VisitCount = 1
	}
	return w, nil
}

type writeOp struct {
	name string
	run  func(ctx context.Context, w domain.Website) error
}

// writeBack enqueues ops on the serial queue of key, in order.
func (p *Pipeline) writeBack(key string, w domain.Website, ops ...writeOp) {
	for _, op := range ops {
		op := op
		p.runner.Enqueue(key, op.name, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
			defer cancel()

			err := safeWrite(ctx, op, w)
			metrics.ObserveWriteBack(op.name, err)
			if err != nil {
				return fmt.Errorf("write-back %s for %s: %w", op.name, key, err)
			}
			return nil
		})
	}
}

func safeWrite(ctx context.Context, op writeOp, w domain.Website) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store panicked: %v", r)
		}
	}()
	return op.run(ctx, w)
}

func (p *Pipeline) upsertHistoryOp() writeOp {
	return writeOp{
		name: "history.upsert",
		run: func(ctx context.Context, w domain.Website) error {
			return p.history.Upsert(ctx, w)
		},
	}
}

func (p *Pipeline) saveCacheOp() writeOp {
	return writeOp{
		name: "cache.save",
		run: func(ctx context.Context, w domain.Website) error {
			_, err := p.cache.Save(ctx, w)
			return err
		},
	}
}

// Search lists recorded websites matching query. Failures yield an empty
// list.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) []domain.Website {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	var results []domain.Website
	err := p.runner.IO(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("history store panicked: %v", r)
			}
		}()
		results, err = p.history.Search(ctx, query, limit)
		return err
	})
	if err != nil {
		p.log.Warn("history search failed",
			logger.String("query", query),
			logger.Error(err))
		return []domain.Website{}
	}
	if results == nil {
		return []domain.Website{}
	}
	return results
}

// ClearCache empties the cache tier.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	if err := p.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	p.log.Info("cache cleared")
	return nil
}

// missStore stands in for an unconfigured tier: every read misses and
// every write is dropped.
type missStore struct{}

func (missStore) Get(context.Context, string) (*domain.Website, error) {
	return nil, nil
}
func (missStore) Save(_ context.Context, w domain.Website) (domain.Website, error) {
	return w, nil
}
func (missStore) Clear(context.Context) error {
	return nil
}
func (missStore) Upsert(context.Context, domain.Website) error {
	return nil
}
func (missStore) Search(context.Context, string, int) ([]domain.Website, error) {
	return nil, nil
}
