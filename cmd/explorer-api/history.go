package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/config"
)

type historyPruner interface {
	PruneSearches(ctx context.Context, before time.Time) (int64, error)
}

// pruneHistory drops search history older than cfg.Retention, once at start
// and then every cfg.PruneInterval until ctx is done. A zero retention
// returns at once.
func pruneHistory(ctx context.Context, db historyPruner, cfg config.HistoryConfig, logger *zap.SugaredLogger) {
	if cfg.Retention <= 0 {
		logger.Info("search history retention disabled")
		return
	}

	pruneOnce(ctx, db, cfg.Retention, logger)

	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruneOnce(ctx, db, cfg.Retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func pruneOnce(ctx context.Context, db historyPruner, retention time.Duration, logger *zap.SugaredLogger) {
	cutoff := time.Now().Add(-retention)
	removed, err := db.PruneSearches(ctx, cutoff)
	if err != nil {
		logger.Warnw("failed to prune search history", "cutoff", cutoff, "error", err)
		return
	}
	if removed > 0 {
		logger.Infow("🧹 Pruned search history", "removed", removed, "cutoff", cutoff)
	}
}
