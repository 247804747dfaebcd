package sitediff

import (
	"context"
	"time"
)

// Diff partitions the identifiers discovered in one run against the
// committed state. It is derived and never persisted.
type Diff struct {
	// New holds identifiers absent from state, in pagination order.
	New []ItemID

	// Seen holds identifiers already present in state.
	Seen []ItemID

	// Gone holds identifiers present in state but missing from the current
	// listing. Only populated when Complete is true.
	Gone []ItemID

	// Complete reports whether pagination ran to a natural end rather than
	// stopping on a failed page.
	Complete bool
}

// FailedItem is a new identifier whose detail page could not be retrieved or
// parsed. Failed items are not committed and are retried next run.
type FailedItem struct {
	ID  ItemID `json:"id"`
	URL string `json:"url"`
	Err string `json:"error"`
}

// FailedPage is a list page whose retrieval failed after retries.
type FailedPage struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Err   string `json:"error"`
}

// RunSummary reports the outcome of one crawl run. It is handed to the
// Notifier and doubles as the failure report for retry bookkeeping.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Site       string    `json:"site"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Pages         int `json:"pages"`
	New           int `json:"new"`
	Seen          int `json:"seen"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	ExtractErrors int `json:"extract_errors"`
	ParseErrors   int `json:"parse_errors"`

	// Deferred counts new identifiers left for a later run by Site.MaxItems.
	Deferred int `json:"deferred,omitempty"`

	Records     []*Record    `json:"-"`
	NewIDs      []ItemID     `json:"new_ids"`
	Gone        []ItemID     `json:"gone,omitempty"`
	FailedItems []FailedItem `json:"failed_items,omitempty"`
	FailedPages []FailedPage `json:"failed_pages,omitempty"`

	// Committed counts identifiers written to the state store.
	Committed int `json:"committed"`

	// Err holds the error that ended the run early, if any.
	Err error `json:"-"`
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RecordSink accepts completed records for storage.
type RecordSink interface {
	// WriteRecords stores a batch of records for site. An error means none of
	// the batch may be considered handed off.
	WriteRecords(ctx context.Context, site string, records []*Record) error
}

// Notifier receives the summary of each finished run.
type Notifier interface {
	Notify(ctx context.Context, summary *RunSummary) error
}
