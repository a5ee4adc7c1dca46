package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
	"github.com/MrSnakeDoc/sitemeta/internal/sources/bookmarks"
)

// BookmarkStore flags exactly the given websites as bookmarked.
type BookmarkStore interface {
	ReplaceBookmarks(ctx context.Context, websites []domain.Website) (int, error)
}

// BookmarkImporter periodically imports a Homepage bookmarks file into the
// history store. A reload can also be requested with Trigger.
type BookmarkImporter struct {
	loader   *bookmarks.Loader
	store    BookmarkStore
	logger   logger.Logger
	interval time.Duration

	trigger  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewBookmarkImporter(
	bookmarkFile string,
	store BookmarkStore,
	log logger.Logger,
	interval time.Duration,
) *BookmarkImporter {
	return &BookmarkImporter{
		loader:   bookmarks.NewLoader(bookmarkFile),
		store:    store,
		logger:   log.Named("bookmarks"),
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start imports once, then keeps importing on every tick or trigger until
// ctx is done or Stop is called. The loop keeps running when the first
// import fails; the error is returned for the caller to report.
func (bi *BookmarkImporter) Start(ctx context.Context) error {
	initialErr := bi.Import(ctx)
	if initialErr != nil {
		initialErr = fmt.Errorf("initial bookmark import failed: %w", initialErr)
	}

	var tick <-chan time.Time
	if bi.interval > 0 {
		ticker := time.NewTicker(bi.interval)
		tick = ticker.C
		go func() {
			<-bi.stopCh
			ticker.Stop()
		}()
	}

	go func() {
		for {
			select {
			case <-tick:
				bi.importAndLog(ctx)
			case <-bi.trigger:
				bi.logger.Info("manual bookmark import triggered")
				bi.importAndLog(ctx)
			case <-bi.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return initialErr
}

// Trigger requests an import without waiting for it. Requests made while
// one is already pending are coalesced.
func (bi *BookmarkImporter) Trigger() {
	select {
	case bi.trigger <- struct{}{}:
	default:
	}
}

func (bi *BookmarkImporter) Stop() {
	bi.stopOnce.Do(func() { close(bi.stopCh) })
}

func (bi *BookmarkImporter) importAndLog(ctx context.Context) {
	if err := bi.Import(ctx); err != nil {
		bi.logger.Error("failed to import bookmarks", logger.Error(err))
	}
}

// Import loads the bookmarks file and replaces the bookmarked set.
func (bi *BookmarkImporter) Import(ctx context.Context) error {
	bi.logger.Debug("importing bookmarks", logger.String("file", bi.loader.Path()))

	file, err := bi.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load bookmarks: %w", err)
	}

	websites, err := bookmarks.Websites(file)
	if err != nil {
		return fmt.Errorf("failed to map bookmarks: %w", err)
	}

	n, err := bi.store.ReplaceBookmarks(ctx, websites)
	if err != nil {
		return fmt.Errorf("failed to store bookmarks: %w", err)
	}

	metrics.SetBookmarksImported(n)
	bi.logger.Info("bookmarks imported", logger.Int("count", n))
	return nil
}
