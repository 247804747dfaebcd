package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.StateStore = (*LoggingStateStore)(nil)

// LoggingStateStore wraps a StateStore with logging.
type LoggingStateStore struct {
	next   sitediff.StateStore
	logger *slog.Logger
}

// NewLoggingStateStore creates a new LoggingStateStore.
func NewLoggingStateStore(next sitediff.StateStore, logger *slog.Logger) *LoggingStateStore {
	return &LoggingStateStore{next: next, logger: logger}
}

func (s *LoggingStateStore) Load(ctx context.Context, site string) (state *sitediff.CrawlState, err error) {
	defer func(begin time.Time) {
		s.logger.Debug("state load",
			"site", site,
			"seen", state.Len(),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Load(ctx, site)
}

func (s *LoggingStateStore) Commit(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) (err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "state commit",
			"site", site,
			"ids", len(ids),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Commit(ctx, site, ids, ts)
}

func (s *LoggingStateStore) Reset(ctx context.Context, site string) (err error) {
	defer func() {
		s.logger.Info("state reset", "site", site, "err", err)
	}()
	return s.next.Reset(ctx, site)
}
