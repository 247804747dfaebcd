package crawl_test

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/mock"
)

// testSite returns a valid site with fast pacing and retries.
func testSite() sitediff.Site {
	return sitediff.Site{
		Name:        "cadical",
		ListURL:     "https://cadical.example/jobs?page={page}",
		StartPage:   sitediff.Ptr(1),
		Fetch:       sitediff.FetchHTTP,
		IDRule:      sitediff.IDRule{Pattern: `/jobs/(\d+)`},
		DetailURL:   "https://cadical.example/jobs/{id}",
		Parser:      sitediff.ParserSpec{Kind: sitediff.ParserDefinitionList},
		Delay:       sitediff.Ptr(time.Millisecond),
		Concurrency: 2,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	}
}

// listPage renders a list page linking to ids.
func listPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><a href="/jobs/%s">Job %s</a></li>`, id, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

// detailPage renders a definition-list detail page for id.
func detailPage(id string) string {
	return fmt.Sprintf(`<html><body><dl><dt>求人番号</dt><dd>%s</dd><dt>勤務地</dt><dd>愛知県名古屋市</dd></dl></body></html>`, id)
}

// fakeSite serves fixed pages; unknown URLs answer 404.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]error
	calls []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: make(map[string]string), fails: make(map[string]error)}
}

// cadical serves list pages {44928, 44929}, {44929, 44930}, an empty page 3
// and a detail page for each identifier.
func cadical() *fakeSite {
	f := newFakeSite()
	f.pages["https://cadical.example/jobs?page=1"] = listPage("44928", "44929")
	f.pages["https://cadical.example/jobs?page=2"] = listPage("44929", "44930")
	f.pages["https://cadical.example/jobs?page=3"] = listPage()
	for _, id := range []string{"44928", "44929", "44930"} {
		f.pages["https://cadical.example/jobs/"+id] = detailPage(id)
	}
	return f
}

func (f *fakeSite) set(url, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = content
}

func (f *fakeSite) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[url] = err
}

func (f *fakeSite) heal(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fails, url)
}

func (f *fakeSite) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeSite) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSite) fetcher() *mock.Fetcher {
	return &mock.Fetcher{
		FetchFn: func(ctx context.Context, url string, _ sitediff.FetchOptions) (string, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls = append(f.calls, url)
			if err := ctx.Err(); err != nil {
				return "", sitediff.NewTransportError(url, err)
			}
			if err, ok := f.fails[url]; ok {
				return "", err
			}
			content, ok := f.pages[url]
			if !ok {
				return "", sitediff.NewStatusError(url, 404)
			}
			return content, nil
		},
		CloseFn: func() error { return nil },
	}
}

// memState is an in-memory state store with snapshot reads.
type memState struct {
	mu      sync.Mutex
	states  map[string]*sitediff.CrawlState
	commits int
	loadErr error
}

func newMemState() *memState {
	return &memState{states: make(map[string]*sitediff.CrawlState)}
}

func (m *memState) snapshot(site string) *sitediff.CrawlState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := sitediff.NewCrawlState(site)
	if s, ok := m.states[site]; ok {
		out.Seen = maps.Clone(s.Seen)
		out.LastRun = s.LastRun
	}
	return out
}

func (m *memState) store() *mock.StateStore {
	return &mock.StateStore{
		LoadFn: func(_ context.Context, site string) (*sitediff.CrawlState, error) {
			if m.loadErr != nil {
				return nil, m.loadErr
			}
			return m.snapshot(site), nil
		},
		CommitFn: func(_ context.Context, site string, ids []sitediff.ItemID, ts time.Time) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			s, ok := m.states[site]
			if !ok {
				s = sitediff.NewCrawlState(site)
				m.states[site] = s
			}
			for _, id := range ids {
				if _, ok := s.Seen[id]; !ok {
					s.Seen[id] = ts
				}
			}
			s.LastRun = ts
			m.commits++
			return nil
		},
		ResetFn: func(_ context.Context, site string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.states, site)
			return nil
		},
	}
}
