package crawl

import (
	"context"
	"iter"
	"log/slog"

	"github.com/fwojciec/sitediff"
)

// Walker produces the list pages of a site in increasing page order.
type Walker struct {
	Fetcher   sitediff.Fetcher
	Limiter   sitediff.SiteLimiter
	Extractor sitediff.IDExtractor

	// Matcher, if set, applies the site's content predicate.
	Matcher sitediff.ContentMatcher

	// Robots, if set, is consulted for sites that respect robots.txt.
	Robots sitediff.RobotsChecker

	Logger *slog.Logger
}

// Pages returns a lazy, finite sequence of list pages for site. Every call
// starts again at the site's start page.
//
// The walk ends, first match wins, when the page limit is reached, when a
// page has no identifiers or fails the content predicate (that page is still
// yielded, with no IDs), when a page after the start page only repeats
// identifiers already yielded by this walk, or when a page answers with a
// terminal client error such as 404, which marks the end of the listing.
//
// A page that still fails after retries is yielded with its error and the
// walk moves on to the next page; the caller should treat the listing as
// incomplete. After Pagination.MaxFailedPages failures in a row the walk
// gives up.
func (w *Walker) Pages(ctx context.Context, site *sitediff.Site) iter.Seq2[*sitediff.ListPage, error] {
	return func(yield func(*sitediff.ListPage, error) bool) {
		logger := w.logger().With("site", site.Name)

		maxFailed := site.Pagination.MaxFailedPages
		if maxFailed <= 0 {
			maxFailed = sitediff.DefaultMaxFailedPages
		}
		var (
			walked IDSet
			failed int
		)

		for n := 0; ; n++ {
			if site.Pagination.MaxPages > 0 && n >= site.Pagination.MaxPages {
				logger.Debug("page limit reached", "pages", n)
				return
			}

			index := site.FirstPage() + n
			page := &sitediff.ListPage{Index: index, URL: site.PageURL(index)}

			if site.RespectRobots && w.Robots != nil {
				ok, err := w.Robots.Allowed(ctx, page.URL, site.UserAgent)
				if err == nil && !ok {
					logger.Info("list page disallowed by robots.txt", "url", page.URL)
					return
				}
			}

			content, err := fetchPaced(ctx, w.Fetcher, w.Limiter, site, page.URL, logger)
			if err != nil {
				if ctx.Err() != nil {
					yield(page, err)
					return
				}
				if sitediff.IsClientError(err) {
					logger.Debug("end of listing", "url", page.URL, "err", err)
					return
				}
				if !yield(page, err) {
					return
				}
				failed++
				if failed >= maxFailed {
					logger.Warn("too many failed list pages, stopping", "failed", failed)
					return
				}
				continue
			}
			failed = 0
			page.Content = content

			if w.Matcher != nil {
				ok, err := w.Matcher.HasContent(content, site.Pagination)
				if err != nil {
					page.ExtractErr = err
				}
				if !ok {
					logger.Debug("page has no content", "url", page.URL)
					yield(page, nil)
					return
				}
			}

			page.IDs, page.ExtractErr = w.Extractor.Extract(content, site.IDRule)
			if !yield(page, nil) {
				return
			}
			if len(page.IDs) == 0 {
				logger.Debug("empty page", "url", page.URL)
				return
			}
			// Listings that serve their last page for any higher index
			// end here.
			if walked.Add(page.IDs...) == 0 && n > 0 {
				logger.Debug("page repeats earlier ids", "url", page.URL)
				return
			}
		}
	}
}

func (w *Walker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// fetchPaced fetches url behind the site limiter with the site's retry policy.
// Each attempt takes its own limiter slot, so retries are paced too.
func fetchPaced(ctx context.Context, fetcher sitediff.Fetcher, limiter sitediff.SiteLimiter, site *sitediff.Site, url string, logger *slog.Logger) (string, error) {
	opts := site.FetchOptions()
	fetch := func(ctx context.Context, url string) (string, error) {
		if limiter != nil {
			release, err := limiter.Acquire(ctx, site.Name)
			if err != nil {
				return "", sitediff.NewTransportError(url, err)
			}
			defer release()
		}
		return fetcher.Fetch(ctx, url, opts)
	}
	return FetchWithRetry(ctx, url, fetch, logger, BackoffDelays(site.BackoffBase, site.MaxRetries))
}
