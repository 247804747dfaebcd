// Package crawl orchestrates incremental crawl runs: it walks list pages,
// extracts identifiers, diffs them against committed state, fetches and
// parses new detail pages, hands records off and commits state.
package crawl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/google/uuid"
)

// Fetchers maps fetch kinds to strategies.
type Fetchers map[sitediff.FetchKind]sitediff.Fetcher

// For returns the strategy for kind.
func (f Fetchers) For(kind sitediff.FetchKind) (sitediff.Fetcher, error) {
	fetcher, ok := f[kind]
	if !ok || fetcher == nil {
		return nil, sitediff.Errorf(sitediff.EINVALID, "no fetcher configured for kind %q", kind)
	}
	return fetcher, nil
}

// Close closes every strategy and joins their errors.
func (f Fetchers) Close() error {
	var errs []error
	for _, fetcher := range f {
		if fetcher == nil {
			continue
		}
		if err := fetcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Runner executes crawl runs for individual sites.
type Runner struct {
	Fetchers  Fetchers
	Extractor sitediff.IDExtractor
	Matcher   sitediff.ContentMatcher
	Parsers   sitediff.ParserRegistry
	State     sitediff.StateStore
	Limiter   sitediff.SiteLimiter

	// Optional collaborators.
	Sink     sitediff.RecordSink
	Notifier sitediff.Notifier
	Robots   sitediff.RobotsChecker
	Logger   *slog.Logger
	Progress ProgressFunc

	// CommitEach hands off and commits every item as soon as it is parsed
	// instead of once at the end of the run.
	CommitEach bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// ProgressEvent reports progress during a run.
type ProgressEvent struct {
	Type      ProgressType
	Site      string
	Page      int
	IDs       int
	Completed int
	Total     int
	URL       string
	Error     error
}

// ProgressType indicates the type of progress event.
type ProgressType int

const (
	ProgressPage ProgressType = iota
	ProgressCompleted
	ProgressFailed
	ProgressFinished
)

// ProgressFunc is a callback for reporting run progress. It may be called
// from several goroutines at once.
type ProgressFunc func(event ProgressEvent)

// Run performs one crawl run for site.
//
// An invalid site definition returns an EINVALID error and a nil summary
// before any network activity; so does a run of a site that is already
// running (ECONFLICT). Every other outcome returns a summary, with the
// error that ended the run early both returned and stored in summary.Err.
// Failed pages and items do not end a run.
//
// Records are handed to the sink before their identifiers are committed,
// and nothing is handed off or committed once ctx is done.
func (r *Runner) Run(ctx context.Context, site sitediff.Site) (*sitediff.RunSummary, error) {
	site = site.WithDefaults()
	if err := site.Validate(); err != nil {
		return nil, err
	}
	fetcher, err := r.Fetchers.For(site.Fetch)
	if err != nil {
		return nil, err
	}
	if r.Parsers == nil || r.Parsers.Get(site.Parser.Kind) == nil {
		return nil, sitediff.Errorf(sitediff.EINVALID, "no parser registered for kind %q", site.Parser.Kind)
	}

	unlock, err := r.lock(site.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	summary := &sitediff.RunSummary{
		RunID:     uuid.NewString(),
		Site:      site.Name,
		StartedAt: r.now(),
	}
	logger := r.logger().With("site", site.Name, "run_id", summary.RunID)
	logger.Info("run started")

	state, err := r.State.Load(ctx, site.Name)
	if err != nil {
		return r.finish(ctx, logger, summary, err)
	}

	// Pagination is strictly sequential.
	walker := &Walker{
		Fetcher:   fetcher,
		Limiter:   r.Limiter,
		Extractor: r.Extractor,
		Matcher:   r.Matcher,
		Robots:    r.Robots,
		Logger:    logger,
	}
	var ids IDSet
	complete := true
	lastIDs := 0
	for page, err := range walker.Pages(ctx, &site) {
		summary.Pages++
		if err != nil {
			complete = false
			summary.FailedPages = append(summary.FailedPages, sitediff.FailedPage{
				Index: page.Index,
				URL:   page.URL,
				Err:   err.Error(),
			})
			logger.Warn("list page failed", "page", page.Index, "url", page.URL, "err", err)
			continue
		}
		if page.ExtractErr != nil {
			summary.ExtractErrors++
			logger.Warn("id extraction failed", "page", page.Index, "err", page.ExtractErr)
		}
		ids.Add(page.IDs...)
		lastIDs = len(page.IDs)
		r.progress(ProgressEvent{Type: ProgressPage, Site: site.Name, Page: page.Index, IDs: len(page.IDs), URL: page.URL})

		if site.Pagination.StopWhenNoNewIDs && page.Index > site.FirstPage() && len(page.IDs) > 0 && !hasUnseen(page.IDs, state) {
			logger.Debug("page has only committed ids, stopping", "page", page.Index)
			complete = false
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return r.finish(ctx, logger, summary, err)
	}
	// A walk cut by the page bound on a non-empty page may have missed ids.
	if limit := site.Pagination.MaxPages; limit > 0 && summary.Pages >= limit && lastIDs > 0 {
		complete = false
	}

	diff := ComputeDiff(ids.IDs(), state, complete)
	summary.New = len(diff.New)
	summary.Seen = len(diff.Seen)
	summary.NewIDs = diff.New
	summary.Gone = diff.Gone
	logger.Info("diff computed", "ids", ids.Len(), "new", summary.New, "seen", summary.Seen, "gone", len(diff.Gone), "complete", complete)

	// Items past the per-run bound stay uncommitted for later runs.
	batch := diff.New
	if site.MaxItems > 0 && len(batch) > site.MaxItems {
		batch = batch[:site.MaxItems]
		summary.Deferred = len(diff.New) - len(batch)
		logger.Info("deferring new items", "fetching", len(batch), "deferred", summary.Deferred)
	}

	ts := r.now()
	details := &DetailFetcher{
		Fetcher: fetcher,
		Limiter: r.Limiter,
		Parsers: r.Parsers,
		Robots:  r.Robots,
		Logger:  logger,
		Now:     r.Now,
	}

	var (
		commitMu  sync.Mutex
		commitErr error
		completed int
	)
	onResult := func(res *DetailResult) {
		commitMu.Lock()
		defer commitMu.Unlock()

		completed++
		ev := ProgressEvent{Type: ProgressCompleted, Site: site.Name, Completed: completed, Total: len(batch), URL: res.URL}
		if res.Failed() {
			ev.Type, ev.Error = ProgressFailed, res.Err
		}
		r.progress(ev)

		if !r.CommitEach || res.Record == nil || commitErr != nil || ctx.Err() != nil {
			return
		}
		if err := r.handOff(ctx, site.Name, []*sitediff.Record{res.Record}); err != nil {
			commitErr = err
			return
		}
		if err := r.State.Commit(ctx, site.Name, []sitediff.ItemID{res.ID}, ts); err != nil {
			commitErr = err
			return
		}
		summary.Committed++
	}
	results := details.FetchAll(ctx, &site, batch, onResult)

	var (
		records []*sitediff.Record
		pending []sitediff.ItemID
	)
	for _, res := range results {
		summary.ParseErrors += res.RowErrors
		switch {
		case res.Skipped:
			summary.Skipped++
			pending = append(pending, res.ID)
		case res.Failed():
			summary.Failed++
			if sitediff.ErrorCode(res.Err) == sitediff.EPARSE {
				summary.ParseErrors++
			}
			summary.FailedItems = append(summary.FailedItems, sitediff.FailedItem{
				ID:  res.ID,
				URL: res.URL,
				Err: res.Err.Error(),
			})
		default:
			records = append(records, res.Record)
			if !r.CommitEach {
				pending = append(pending, res.ID)
			}
		}
	}
	summary.Records = records

	if err := ctx.Err(); err != nil {
		return r.finish(ctx, logger, summary, err)
	}
	if commitErr != nil {
		return r.finish(ctx, logger, summary, commitErr)
	}

	if !r.CommitEach {
		if err := r.handOff(ctx, site.Name, records); err != nil {
			return r.finish(ctx, logger, summary, err)
		}
	}
	// Also records the last run when nothing new was found.
	if err := r.State.Commit(ctx, site.Name, pending, ts); err != nil {
		return r.finish(ctx, logger, summary, err)
	}
	summary.Committed += len(pending)

	return r.finish(ctx, logger, summary, nil)
}

// hasUnseen reports whether any of ids is absent from state.
func hasUnseen(ids []sitediff.ItemID, state *sitediff.CrawlState) bool {
	for _, id := range ids {
		if !state.Has(id) {
			return true
		}
	}
	return false
}

func (r *Runner) handOff(ctx context.Context, site string, records []*sitediff.Record) error {
	if r.Sink == nil || len(records) == 0 {
		return nil
	}
	return r.Sink.WriteRecords(ctx, site, records)
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, summary *sitediff.RunSummary, err error) (*sitediff.RunSummary, error) {
	summary.FinishedAt = r.now()
	summary.Err = err

	attrs := []any{
		"pages", summary.Pages,
		"new", summary.New,
		"seen", summary.Seen,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"committed", summary.Committed,
		"duration", summary.Duration(),
	}
	if err != nil {
		logger.Error("run failed", append(attrs, "err", err)...)
	} else {
		logger.Info("run finished", attrs...)
	}
	r.progress(ProgressEvent{Type: ProgressFinished, Site: summary.Site, Completed: summary.New - summary.Deferred - summary.Failed, Total: summary.New - summary.Deferred, Error: err})

	if r.Notifier != nil {
		// The summary is delivered even when the run was canceled.
		if nerr := r.Notifier.Notify(context.WithoutCancel(ctx), summary); nerr != nil {
			logger.Warn("notify failed", "err", nerr)
		}
	}
	return summary, err
}

// lock claims site for the duration of a run.
func (r *Runner) lock(site string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running == nil {
		r.running = make(map[string]struct{})
	}
	if _, ok := r.running[site]; ok {
		return nil, sitediff.Errorf(sitediff.ECONFLICT, "site %q is already running", site)
	}
	r.running[site] = struct{}{}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.running, site)
	}, nil
}

func (r *Runner) progress(ev ProgressEvent) {
	if r.Progress != nil {
		r.Progress(ev)
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}
