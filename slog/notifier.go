package slog

import (
	"context"
	"log/slog"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.Notifier = (*Notifier)(nil)

// Notifier logs each run summary. Runs that ended with an error or left
// failures behind are logged at warn level.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a new Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, s *sitediff.RunSummary) error {
	level := slog.LevelInfo
	if s.Err != nil || s.Failed > 0 || len(s.FailedPages) > 0 {
		level = slog.LevelWarn
	}
	attrs := []any{
		"site", s.Site,
		"run_id", s.RunID,
		"pages", s.Pages,
		"new", s.New,
		"seen", s.Seen,
		"gone", len(s.Gone),
		"failed", s.Failed,
		"skipped", s.Skipped,
		"committed", s.Committed,
		"duration", s.Duration(),
	}
	if s.Err != nil {
		attrs = append(attrs, "err", s.Err)
	}
	n.logger.Log(ctx, level, "run finished", attrs...)
	return nil
}
