package crawl

import (
	"context"
	"sync"
	"time"

	"github.com/fwojciec/sitediff"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var _ sitediff.SiteLimiter = (*SiteLimiter)(nil)

// SiteLimiter paces requests and bounds in-flight requests per site. Each
// site owns a token bucket with burst 1 refilled once per delay, and a
// semaphore sized to its concurrency. Sites never share state.
type SiteLimiter struct {
	mu    sync.Mutex
	sites map[string]*siteSlot

	defaultDelay       time.Duration
	defaultConcurrency int

	// OnDispatch, if set, is called with the time each request passes the
	// pacing gate. Calls for one site are serialized and in order.
	OnDispatch func(site string, at time.Time)
}

type siteSlot struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	delay   time.Duration

	// dispatch serializes pacing so last is the previous dispatch time.
	dispatch sync.Mutex
	last     time.Time
}

// NewSiteLimiter creates a SiteLimiter configured for the given sites.
// Sites acquired without being configured get the package defaults.
func NewSiteLimiter(sites ...sitediff.Site) *SiteLimiter {
	l := &SiteLimiter{
		sites:              make(map[string]*siteSlot),
		defaultDelay:       sitediff.DefaultDelay,
		defaultConcurrency: sitediff.DefaultConcurrency,
	}
	for _, s := range sites {
		l.Configure(s.Name, s.Spacing(), s.Concurrency)
	}
	return l
}

// Configure sets the delay and concurrency bound for site, replacing any
// previous settings. A non-positive concurrency is treated as 1.
func (l *SiteLimiter) Configure(site string, delay time.Duration, concurrency int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sites[site] = newSiteSlot(delay, concurrency)
}

func newSiteSlot(delay time.Duration, concurrency int) *siteSlot {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &siteSlot{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		limiter: rate.NewLimiter(limit, 1),
		delay:   delay,
	}
}

func (l *SiteLimiter) slot(site string) *siteSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sites[site]
	if !ok {
		s = newSiteSlot(l.defaultDelay, l.defaultConcurrency)
		l.sites[site] = s
	}
	return s
}

// Acquire takes a concurrency slot for site and waits for its pacing gate.
// The slot is released by the returned function, which is safe to call more
// than once. If ctx ends while waiting, nothing stays held.
func (l *SiteLimiter) Acquire(ctx context.Context, site string) (func(), error) {
	s := l.slot(site)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() { s.sem.Release(1) })
	}

	if err := s.pace(ctx, func(at time.Time) {
		if l.OnDispatch != nil {
			l.OnDispatch(site, at)
		}
	}); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// pace blocks until the token bucket allows a dispatch. The bucket schedules
// by token time rather than wake time, so a floor of delay since the previous
// dispatch is enforced on top of it.
func (s *siteSlot) pace(ctx context.Context, dispatched func(time.Time)) error {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if !s.last.IsZero() {
		if wait := s.delay - time.Since(s.last); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	s.last = time.Now()
	dispatched(s.last)
	return nil
}
