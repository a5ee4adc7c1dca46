package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/metrics"
)

const (
	// DefaultRetention is how long an unvisited, non-bookmarked website is kept.
	DefaultRetention = 90 * 24 * time.Hour
)

// PruneStore deletes non-bookmarked websites last visited before cutoff.
type PruneStore interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryPruner periodically removes stale history rows.
type HistoryPruner struct {
	store     PruneStore
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewHistoryPruner(
	store PruneStore,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *HistoryPruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &HistoryPruner{
		store:     store,
		logger:    log.Named("pruner"),
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start prunes immediately, then on every tick until ctx is done or Stop
// is called.
func (hp *HistoryPruner) Start(ctx context.Context) {
	if _, err := hp.Prune(ctx); err != nil {
		hp.logger.Warn("initial history prune failed", logger.Error(err))
	}

	ticker := time.NewTicker(hp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := hp.Prune(ctx); err != nil {
					hp.logger.Error("history prune failed", logger.Error(err))
				}
			case <-hp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (hp *HistoryPruner) Stop() {
	hp.stopOnce.Do(func() { close(hp.stopCh) })
}

// Prune deletes every non-bookmarked website not visited within the
// retention window and returns how many were removed.
func (hp *HistoryPruner) Prune(ctx context.Context) (int64, error) {
	cutoff := hp.now().Add(-hp.retention)

	removed, err := hp.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}

	metrics.ObserveHistoryPruned(removed)
	if removed > 0 {
		hp.logger.Info("history pruned",
			logger.Int64("removed", removed),
			logger.Duration("retention", hp.retention))
	} else {
		hp.logger.Debug("no stale history to prune")
	}
	return removed, nil
}
