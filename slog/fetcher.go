// Package slog provides logging decorators for sitediff services.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sitediff"
)

// Ensure LoggingFetcher implements sitediff.Fetcher.
var _ sitediff.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with request logging.
type LoggingFetcher struct {
	next   sitediff.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next sitediff.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch logs the URL, response size and duration, and delegates to the
// wrapped fetcher. Failures are logged at warn level.
func (f *LoggingFetcher) Fetch(ctx context.Context, url string, opts sitediff.FetchOptions) (content string, err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		f.logger.Log(ctx, level, "fetch",
			"url", url,
			"bytes", len(content),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return f.next.Fetch(ctx, url, opts)
}

// Close delegates to the wrapped fetcher.
func (f *LoggingFetcher) Close() error {
	return f.next.Close()
}
