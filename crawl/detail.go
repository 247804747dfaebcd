package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/sitediff"
	"golang.org/x/sync/errgroup"
)

// DetailResult is the outcome of fetching and parsing one new identifier.
type DetailResult struct {
	ID  sitediff.ItemID
	URL string

	// Record is set on success.
	Record *sitediff.Record

	// Err is set when the item failed; the item must not be committed.
	Err error

	// Skipped is set when robots.txt disallows the detail page.
	Skipped bool

	// RowErrors counts rows the parser skipped.
	RowErrors int
}

// Failed reports whether the item must be retried next run.
func (r *DetailResult) Failed() bool {
	return r.Err != nil
}

// DetailFetcher retrieves and parses detail pages for new identifiers.
type DetailFetcher struct {
	Fetcher sitediff.Fetcher
	Limiter sitediff.SiteLimiter
	Parsers sitediff.ParserRegistry
	Robots  sitediff.RobotsChecker
	Logger  *slog.Logger

	// Now returns the retrieval time stamped on records. Defaults to time.Now.
	Now func() time.Time
}

// FetchAll processes ids with up to site.Concurrency workers and returns the
// results in the order of ids. A failing item never stops the others. If fn
// is non-nil it is called with each result as soon as it is ready, from the
// worker goroutine.
func (d *DetailFetcher) FetchAll(ctx context.Context, site *sitediff.Site, ids []sitediff.ItemID, fn func(*DetailResult)) []*DetailResult {
	results := make([]*DetailResult, len(ids))

	concurrency := site.Concurrency
	if concurrency <= 0 {
		concurrency = sitediff.DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			r := d.fetchOne(ctx, site, id)
			results[i] = r
			if fn != nil {
				fn(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *DetailFetcher) fetchOne(ctx context.Context, site *sitediff.Site, id sitediff.ItemID) *DetailResult {
	r := &DetailResult{ID: id, URL: site.ItemURL(id)}
	logger := d.logger().With("site", site.Name, "id", string(id))

	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	if site.RespectRobots && d.Robots != nil {
		if ok, err := d.Robots.Allowed(ctx, r.URL, site.UserAgent); err == nil && !ok {
			logger.Info("detail page disallowed by robots.txt", "url", r.URL)
			r.Skipped = true
			return r
		}
	}

	content, err := fetchPaced(ctx, d.Fetcher, d.Limiter, site, r.URL, logger)
	if err != nil {
		logger.Warn("detail fetch failed", "url", r.URL, "err", err)
		r.Err = err
		return r
	}

	parser := d.Parsers.Get(site.Parser.Kind)
	if parser == nil {
		r.Err = sitediff.Errorf(sitediff.EPARSE, "no parser registered for kind %q", site.Parser.Kind)
		return r
	}
	parsed, err := parser.Parse(content, site.Parser)
	if err != nil {
		logger.Warn("detail parse failed", "url", r.URL, "err", err)
		r.Err = err
		return r
	}
	r.RowErrors = parsed.Skipped

	r.Record = &sitediff.Record{
		Site:        site.Name,
		ItemID:      id,
		URL:         r.URL,
		ContentHash: ComputeHash(content),
		RetrievedAt: d.now(),
		Fields:      parsed.Fields,
	}
	return r
}

func (d *DetailFetcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *DetailFetcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// ComputeHash computes a hash of the content using xxhash.
func ComputeHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}
