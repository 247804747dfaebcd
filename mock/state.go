package mock

import (
	"context"
	"time"

	"github.com/fwojciec/sitediff"
)

var (
	_ sitediff.StateStore = (*StateStore)(nil)
	_ sitediff.RecordSink = (*RecordSink)(nil)
	_ sitediff.Notifier   = (*Notifier)(nil)
)

// StateStore is a mock implementation of sitediff.StateStore.
type StateStore struct {
	LoadFn   func(ctx context.Context, site string) (*sitediff.CrawlState, error)
	CommitFn func(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) error
	ResetFn  func(ctx context.Context, site string) error
}

func (s *StateStore) Load(ctx context.Context, site string) (*sitediff.CrawlState, error) {
	return s.LoadFn(ctx, site)
}

func (s *StateStore) Commit(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) error {
	return s.CommitFn(ctx, site, ids, ts)
}

func (s *StateStore) Reset(ctx context.Context, site string) error {
	return s.ResetFn(ctx, site)
}

// RecordSink is a mock implementation of sitediff.RecordSink.
type RecordSink struct {
	WriteRecordsFn func(ctx context.Context, site string, records []*sitediff.Record) error
}

func (s *RecordSink) WriteRecords(ctx context.Context, site string, records []*sitediff.Record) error {
	return s.WriteRecordsFn(ctx, site, records)
}

// Notifier is a mock implementation of sitediff.Notifier.
type Notifier struct {
	NotifyFn func(ctx context.Context, summary *sitediff.RunSummary) error
}

func (n *Notifier) Notify(ctx context.Context, summary *sitediff.RunSummary) error {
	return n.NotifyFn(ctx, summary)
}
