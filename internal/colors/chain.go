// Package colors picks an accent color for a website: its declared theme
// color first, then the dominant color of its icon, else no color.
package colors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
	"github.com/MrSnakeDoc/sitemeta/internal/supervisor"
)

const (
	sourceStore   = "store"
	sourceTheme   = "theme"
	sourcePalette = "palette"
	sourceNone    = "none"

	backfillResolved = "resolved"
	backfillEmpty    = "empty"
	backfillRejected = "rejected"
)

// Resolver produces the website a backfill extracts colors from.
// *resolver.Pipeline satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, mode domain.Mode) domain.Website
}

// Runner runs detached, supervised tasks. *supervisor.Supervisor satisfies it.
type Runner interface {
	Go(name string, fn supervisor.Task) bool
}

type Options struct {
	LookupTimeout time.Duration // bound on the color store read of ResolveColorSync
}

type Chain struct {
	colors    domain.ColorStore
	extractor domain.PaletteExtractor
	resolver  Resolver
	runner    Runner
	opts      Options
	log       logger.Logger

	backfills singleflight.Group
}

func New(colors domain.ColorStore, extractor domain.PaletteExtractor, resolver Resolver, runner Runner, opts Options, log logger.Logger) *Chain {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 250 * time.Millisecond
	}
	return &Chain{
		colors:    colors,
		extractor: extractor,
		resolver:  resolver,
		runner:    runner,
		opts:      opts,
		log:       log.Named("colors"),
	}
}

// ResolveColor returns the accent color of website and records it for the
// website's host. It never fails; NoWebColor means nothing was found and
// nothing was stored.
func (c *Chain) ResolveColor(ctx context.Context, website domain.Website) domain.WebColor {
	host := domain.Host(website.URL)

	if website.ThemeColor.Valid() {
		metrics.ObserveColorResolution(sourceTheme)
		return c.save(ctx, host, website.ThemeColor)
	}

	if color := c.extract(ctx, website); color.Valid() {
		metrics.ObserveColorResolution(sourcePalette)
		return c.save(ctx, host, color)
	}

	metrics.ObserveColorResolution(sourceNone)
	return domain.NoWebColor
}

func (c *Chain) extract(ctx context.Context, website domain.Website) (color domain.Color) {
	if c.extractor == nil {
		return domain.NoColor
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("palette extractor panicked",
				logger.String("url", website.URL),
				logger.Any("panic", r))
			color = domain.NoColor
		}
	}()

	color, err := c.extractor.Extract(ctx, website)
	if err != nil {
		c.log.Debug("palette extraction failed",
			logger.String("url", website.URL),
			logger.Error(err))
		return domain.NoColor
	}
	return color
}

// save persists color for host. A failed write is logged and the color is
// returned anyway.
func (c *Chain) save(ctx context.Context, host string, color domain.Color) (wc domain.WebColor) {
	wc = domain.WebColor{Host: host, Color: color}
	if host == "" || c.colors == nil {
		return wc
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("color store panicked on save",
				logger.String("host", host),
				logger.Any("panic", r))
		}
	}()

	if _, err := c.colors.Save(ctx, host, color); err != nil {
		c.log.Warn("failed to save color",
			logger.String("host", host),
			logger.Stringer("color", color),
			logger.Error(err))
	}
	return wc
}

// ResolveColorSync returns the stored color of rawURL's host without
// waiting on anything slower than a bounded store read. When the color is
// unknown it returns NoColor and schedules a backfill.
func (c *Chain) ResolveColorSync(ctx context.Context, rawURL string) domain.Color {
	host := domain.Host(rawURL)
	if host == "" {
		return domain.NoColor
	}

	color, err := c.lookup(ctx, host)
	if err != nil {
		c.log.Warn("color lookup failed, scheduling backfill",
			logger.String("host", host),
			logger.Error(err))
	}
	if color.Valid() {
		metrics.ObserveColorResolution(sourceStore)
		return color
	}

	c.scheduleBackfill(rawURL, host)
	return domain.NoColor
}

type lookupResult struct {
	color domain.Color
	err   error
}

func (c *Chain) lookup(ctx context.Context, host string) (domain.Color, error) {
	if c.colors == nil {
		return domain.NoColor, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.LookupTimeout)
	defer cancel()

	ch := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- lookupResult{color: domain.NoColor, err: fmt.Errorf("color store panicked: %v", r)}
			}
		}()
		color, err := c.colors.Get(ctx, host)
		ch <- lookupResult{color: color, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return domain.NoColor, res.err
		}
		return res.color, nil
	case <-ctx.Done():
		return domain.NoColor, ctx.Err()
	}
}

var errNoColor = errors.New("no color found")

// scheduleBackfill resolves rawURL in the background and stores its color.
// Concurrent backfills of the same host share a single resolution.
func (c *Chain) scheduleBackfill(rawURL, host string) {
	if c.runner == nil || c.resolver == nil {
		return
	}

	accepted := c.runner.Go("color.backfill", func(ctx context.Context) error {
		_, err, shared := c.backfills.Do(host, func() (any, error) {
			website := c.resolver.Resolve(ctx, rawURL, domain.ReadOnly)
			wc := c.ResolveColor(ctx, website)
			if !wc.Color.Valid() {
				metrics.ObserveColorBackfill(backfillEmpty)
				return wc, errNoColor
			}
			metrics.ObserveColorBackfill(backfillResolved)
			return wc, nil
		})
		if errors.Is(err, errNoColor) {
			c.log.Debug("color backfill found nothing",
				logger.String("host", host),
				logger.Bool("shared", shared))
			return nil
		}
		return err
	})
	if !accepted {
		metrics.ObserveColorBackfill(backfillRejected)
	}
}
