package mock

import (
	"context"

	"github.com/fwojciec/sitediff"
)

var (
	_ sitediff.Fetcher       = (*Fetcher)(nil)
	_ sitediff.RobotsChecker = (*RobotsChecker)(nil)
	_ sitediff.SiteLimiter   = (*SiteLimiter)(nil)
)

// Fetcher is a mock implementation of sitediff.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string, opts sitediff.FetchOptions) (string, error)
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, url string, opts sitediff.FetchOptions) (string, error) {
	return f.FetchFn(ctx, url, opts)
}

func (f *Fetcher) Close() error {
	return f.CloseFn()
}

// RobotsChecker is a mock implementation of sitediff.RobotsChecker.
type RobotsChecker struct {
	AllowedFn func(ctx context.Context, url string, userAgent string) (bool, error)
}

func (r *RobotsChecker) Allowed(ctx context.Context, url string, userAgent string) (bool, error) {
	return r.AllowedFn(ctx, url, userAgent)
}

// SiteLimiter is a mock implementation of sitediff.SiteLimiter.
type SiteLimiter struct {
	AcquireFn func(ctx context.Context, site string) (func(), error)
}

func (l *SiteLimiter) Acquire(ctx context.Context, site string) (func(), error) {
	return l.AcquireFn(ctx, site)
}
