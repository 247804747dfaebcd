package sitediff

import (
	"context"
	"time"
)

// FetchOptions carries per-request hints. Strategies ignore hints they
// cannot honour (the HTTP fetcher does not scroll).
type FetchOptions struct {
	Headers   map[string]string
	UserAgent string

	// Timeout bounds a single request. Zero means the strategy default.
	Timeout time.Duration

	// Wait is an additional settle delay after the page loads.
	Wait time.Duration

	// Scroll triggers lazy content by scrolling the page. ScrollCount scrolls
	// a fixed number of viewports; zero scrolls until the height settles.
	Scroll      bool
	ScrollCount int
}

// Fetcher retrieves raw page content from URLs.
// Implementations hide whether content comes from a direct HTTP request or
// a browser that executes JavaScript.
type Fetcher interface {
	// Fetch returns the page content for url. Failures are reported as
	// *FetchError carrying a retryable or terminal classification.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string, opts FetchOptions) (content string, err error)

	// Close releases resources held by the strategy.
	// Must be called when the Fetcher is no longer needed.
	Close() error
}

// RobotsChecker reports whether a URL may be crawled by the given agent.
type RobotsChecker interface {
	Allowed(ctx context.Context, url string, userAgent string) (bool, error)
}

// SiteLimiter paces requests and bounds concurrency per site.
type SiteLimiter interface {
	// Acquire blocks until the site's pacing and concurrency bound allow
	// another request. The returned release function must be called once
	// the request finishes; calling it more than once is safe.
	// Returns an error if the context is canceled while waiting.
	Acquire(ctx context.Context, site string) (release func(), err error)
}
