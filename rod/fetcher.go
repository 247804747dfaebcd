// Package rod provides a browser-based implementation of sitediff.Fetcher
// for listings that render their content with JavaScript.
package rod

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultFetchTimeout bounds a single page load including scrolling.
const DefaultFetchTimeout = 30 * time.Second

// DefaultScrollInterval is the pause between scroll steps.
const DefaultScrollInterval = 500 * time.Millisecond

// maxScrolls bounds scroll-until-settled on infinite pages.
const maxScrolls = 50

// Ensure Fetcher implements sitediff.Fetcher at compile time.
var _ sitediff.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves rendered HTML using Chrome browser automation.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	manager        *BrowserManager
	ownsManager    bool
	managerOpts    []ManagerOption
	timeout        time.Duration
	userAgent      string
	stealth        bool
	scrollInterval time.Duration
	closed         atomic.Bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithFetchTimeout sets the default per-page timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithStealth opens pages with go-rod/stealth evasions applied.
func WithStealth(enabled bool) Option {
	return func(f *Fetcher) {
		f.stealth = enabled
	}
}

// WithScrollInterval sets the pause between scroll steps.
func WithScrollInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		f.scrollInterval = d
	}
}

// WithBrowserManager shares an existing manager. The Fetcher does not close
// a manager it did not create.
func WithBrowserManager(bm *BrowserManager) Option {
	return func(f *Fetcher) {
		f.manager = bm
	}
}

// WithManagerOptions configures the manager the Fetcher launches itself.
func WithManagerOptions(opts ...ManagerOption) Option {
	return func(f *Fetcher) {
		f.managerOpts = append(f.managerOpts, opts...)
	}
}

// NewFetcher creates a Fetcher, launching a headless browser unless one is
// supplied with WithBrowserManager. Close must be called when done.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		timeout:        DefaultFetchTimeout,
		scrollInterval: DefaultScrollInterval,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.manager == nil {
		bm, err := NewBrowserManager(f.managerOpts...)
		if err != nil {
			return nil, err
		}
		f.manager = bm
		f.ownsManager = true
	}
	return f, nil
}

// Fetch loads url in a fresh tab and returns the rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts sitediff.FetchOptions) (string, error) {
	if f.closed.Load() {
		return "", sitediff.Errorf(sitediff.EINVALID, "fetcher is closed")
	}
	if err := ctx.Err(); err != nil {
		return "", sitediff.NewTransportError(url, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	browser, release, err := f.manager.Acquire()
	if err != nil {
		return "", sitediff.NewTransportError(url, err)
	}
	defer release()

	page, err := f.newPage(browser)
	if err != nil {
		return "", sitediff.NewTransportError(url, err)
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := f.prepare(page, opts); err != nil {
		return "", classify(ctx, url, err)
	}
	if err := page.Navigate(url); err != nil {
		return "", classify(ctx, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", classify(ctx, url, err)
	}

	if status := responseStatus(page); status >= http.StatusBadRequest {
		return "", sitediff.NewStatusError(url, status)
	}

	if opts.Scroll {
		if err := f.scroll(ctx, page, opts.ScrollCount); err != nil {
			return "", classify(ctx, url, err)
		}
	}
	if opts.Wait > 0 {
		if err := sleep(ctx, opts.Wait); err != nil {
			return "", classify(ctx, url, err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", classify(ctx, url, err)
	}
	return html, nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f.ownsManager {
		return f.manager.Close()
	}
	return nil
}

// LauncherPID returns the process ID of the browser launcher.
func (f *Fetcher) LauncherPID() int {
	return f.manager.LauncherPID()
}

func (f *Fetcher) newPage(browser *rod.Browser) (*rod.Page, error) {
	if f.stealth {
		return stealth.Page(browser)
	}
	return browser.Page(proto.TargetCreateTarget{})
}

func (f *Fetcher) prepare(page *rod.Page, opts sitediff.FetchOptions) error {
	ua := opts.UserAgent
	if ua == "" {
		ua = f.userAgent
	}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return err
		}
	}

	if len(opts.Headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dict := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		dict = append(dict, k, opts.Headers[k])
	}
	_, err := page.SetExtraHeaders(dict)
	return err
}

// scroll scrolls count viewports, or until the document height stops
// growing when count is zero.
func (f *Fetcher) scroll(ctx context.Context, page *rod.Page, count int) error {
	if count > 0 {
		for range count {
			if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
				return err
			}
			if err := sleep(ctx, f.scrollInterval); err != nil {
				return err
			}
		}
		return nil
	}

	last := -1
	for range maxScrolls {
		res, err := page.Eval(`() => document.body ? document.body.scrollHeight : 0`)
		if err != nil {
			return err
		}
		height := res.Value.Int()
		if height == last {
			return nil
		}
		last = height
		if _, err := page.Eval(`(h) => window.scrollTo(0, h)`, height); err != nil {
			return err
		}
		if err := sleep(ctx, f.scrollInterval); err != nil {
			return err
		}
	}
	return nil
}

// responseStatus reads the main document's HTTP status from the Navigation
// Timing API. Zero means the browser did not report one.
func responseStatus(page *rod.Page) int {
	res, err := page.Eval(`() => {
		const e = performance.getEntriesByType('navigation')[0];
		return e && e.responseStatus ? e.responseStatus : 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// classify maps browser failures to FetchErrors, preferring the context's
// own error so deadlines stay retryable and cancellation stays terminal.
func classify(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return sitediff.NewTransportError(url, ctxErr)
	}
	return sitediff.NewTransportError(url, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
