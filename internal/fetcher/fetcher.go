// Package fetcher implements the network store: it downloads a live page
// with colly and extracts the metadata a Website carries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
)

// ErrNotHTML is returned when a page answers with a non-HTML body.
var ErrNotHTML = errors.New("response is not HTML")

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxIconBytes int
}

// Fetcher is a domain.NetworkStore backed by a colly collector. Each call
// works on a clone so callbacks never leak between requests.
type Fetcher struct {
	cfg           Config
	log           logger.Logger
	baseCollector *colly.Collector
	now           func() time.Time
}

func New(cfg Config, log logger.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIconBytes <= 0 {
		cfg.MaxIconBytes = 512 * 1024
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		log:           log,
		baseCollector: c,
		now:           time.Now,
	}
}

// Get downloads rawURL and returns its metadata. The returned Website
// keeps rawURL as its URL.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*domain.Website, error) {
	start := time.Now()

	var (
		meta     pageMeta
		finalURL *url.URL
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.Context = ctx
	meta.register(collector)

	collector.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL
		contentType := strings.ToLower(r.Headers.Get("Content-Type"))
		if !strings.Contains(contentType, "html") {
			fetchErr = fmt.Errorf("%w: %q", ErrNotHTML, contentType)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := run(ctx, collector, rawURL, &fetchErr); err != nil {
		f.log.Debug("page fetch failed",
			logger.String("url", rawURL),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return nil, err
	}

	website := meta.website(rawURL, finalURL, f.now())
	f.log.Debug("page fetched",
		logger.String("url", rawURL),
		logger.String("title", website.Title),
		logger.Duration("elapsed", time.Since(start)))
	return &website, nil
}

// Save is a pass-through: the network tier cannot persist anything.
func (f *Fetcher) Save(_ context.Context, website domain.Website) (domain.Website, error) {
	return website, nil
}

// FetchIcon downloads the icon at iconURL. Bodies are truncated at
// MaxIconBytes.
func (f *Fetcher) FetchIcon(ctx context.Context, iconURL string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.MaxBodySize = f.cfg.MaxIconBytes

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := run(ctx, collector, iconURL, &fetchErr); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty icon body from %s", iconURL)
	}
	return body, nil
}

// run visits target and returns as soon as ctx is done.
func run(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", target, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", target, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
