package crawl_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/fwojciec/sitediff/goquery"
	"github.com/fwojciec/sitediff/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// recordSink collects handed-off records.
type recordSink struct {
	mu      sync.Mutex
	records []*sitediff.Record
	err     error
}

func (s *recordSink) sink() *mock.RecordSink {
	return &mock.RecordSink{
		WriteRecordsFn: func(_ context.Context, _ string, records []*sitediff.Record) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.err != nil {
				return s.err
			}
			s.records = append(s.records, records...)
			return nil
		},
	}
}

func (s *recordSink) ids() []sitediff.ItemID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]sitediff.ItemID, len(s.records))
	for i, r := range s.records {
		ids[i] = r.ItemID
	}
	return ids
}

func newRunner(f *fakeSite, state *memState, sink *recordSink) *crawl.Runner {
	extractor := goquery.NewIDExtractor()
	return &crawl.Runner{
		Fetchers:  crawl.Fetchers{sitediff.FetchHTTP: f.fetcher()},
		Extractor: extractor,
		Matcher:   extractor,
		Parsers:   goquery.NewRegistry(),
		State:     state.store(),
		Limiter:   crawl.NewSiteLimiter(testSite()),
		Sink:      sink.sink(),
		Now:       func() time.Time { return runTime },
	}
}

func seenIDs(s *sitediff.CrawlState) []sitediff.ItemID {
	ids := make([]sitediff.ItemID, 0, len(s.Seen))
	for id := range s.Seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("cadical end to end", func(t *testing.T) {
		t.Parallel()

		state, sink := newMemState(), &recordSink{}
		r := newRunner(cadical(), state, sink)

		summary, err := r.Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, []sitediff.ItemID{"44928", "44929", "44930"}, summary.NewIDs)
		assert.Equal(t, 3, summary.New)
		assert.Equal(t, 0, summary.Seen)
		assert.Equal(t, 3, summary.Pages)
		require.Len(t, summary.Records, 3)
		for i, id := range summary.NewIDs {
			rec := summary.Records[i]
			assert.Equal(t, id, rec.ItemID)
			assert.Equal(t, "cadical", rec.Site)
			assert.Equal(t, "https://cadical.example/jobs/"+string(id), rec.URL)
			assert.Equal(t, runTime, rec.RetrievedAt)
			assert.NotEmpty(t, rec.ContentHash)
			v, ok := rec.Fields.Get("求人番号")
			require.True(t, ok)
			assert.Equal(t, string(id), v)
		}
		assert.Equal(t, []sitediff.ItemID{"44928", "44929", "44930"}, sink.ids())
		assert.Equal(t, []sitediff.ItemID{"44928", "44929", "44930"}, seenIDs(state.snapshot("cadical")))
		assert.Equal(t, 3, summary.Committed)
		assert.NotEmpty(t, summary.RunID)
		assert.NoError(t, summary.Err)
	})

	t.Run("second run finds nothing new", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)

		_, err := r.Run(context.Background(), testSite())
		require.NoError(t, err)
		second, err := r.Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Zero(t, second.New)
		assert.Empty(t, second.NewIDs)
		assert.Equal(t, 3, second.Seen)
		assert.Len(t, sink.ids(), 3)
		assert.Equal(t, 1, f.count("https://cadical.example/jobs/44928"))
	})

	t.Run("state only grows and new ids are reported once", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)

		first, err := r.Run(context.Background(), testSite())
		require.NoError(t, err)
		before := state.snapshot("cadical")

		// 44928 drops off the listing and 44931 appears.
		f.set(pageURL(1), listPage("44931", "44929"))
		f.set("https://cadical.example/jobs/44931", detailPage("44931"))
		second, err := r.Run(context.Background(), testSite())
		require.NoError(t, err)
		after := state.snapshot("cadical")

		for id, ts := range before.Seen {
			got, ok := after.Seen[id]
			assert.True(t, ok, "id %s lost", id)
			assert.Equal(t, ts, got, "first-seen time of %s changed", id)
		}
		assert.Equal(t, []sitediff.ItemID{"44931"}, second.NewIDs)
		assert.Equal(t, []sitediff.ItemID{"44928"}, second.Gone)
		for _, id := range second.NewIDs {
			assert.NotContains(t, first.NewIDs, id)
		}
	})

	t.Run("exhausted retries are reported and not committed", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		failing := "https://cadical.example/jobs/44929"
		f.fail(failing, sitediff.NewStatusError(failing, 503))
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)
		site := testSite()

		summary, err := r.Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		require.Len(t, summary.FailedItems, 1)
		assert.Equal(t, sitediff.ItemID("44929"), summary.FailedItems[0].ID)
		assert.Equal(t, failing, summary.FailedItems[0].URL)
		assert.Equal(t, site.MaxRetries+1, f.count(failing))
		assert.Equal(t, []sitediff.ItemID{"44928", "44930"}, seenIDs(state.snapshot("cadical")))
		assert.Equal(t, []sitediff.ItemID{"44928", "44930"}, sink.ids())

		// The failed item is new again on the next run.
		f.heal(failing)
		next, err := r.Run(context.Background(), site)
		require.NoError(t, err)
		assert.Equal(t, []sitediff.ItemID{"44929"}, next.NewIDs)
	})

	t.Run("parse failure marks the item failed", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		f.set("https://cadical.example/jobs/44930", `<p>listing removed</p>`)
		state, sink := newMemState(), &recordSink{}

		summary, err := newRunner(f, state, sink).Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.ParseErrors)
		assert.NotContains(t, seenIDs(state.snapshot("cadical")), sitediff.ItemID("44930"))
	})

	t.Run("failed list page keeps partial results and skips gone", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		f.fail(pageURL(2), sitediff.NewTransportError(pageURL(2), errors.New("connection reset")))
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)
		state.states["cadical"] = stateWith("40000")

		summary, err := r.Run(context.Background(), testSite())

		require.NoError(t, err)
		require.Len(t, summary.FailedPages, 1)
		assert.Equal(t, 2, summary.FailedPages[0].Index)
		assert.Equal(t, 1, f.count(pageURL(3)), "pages after a failed page are still walked")
		assert.Equal(t, []sitediff.ItemID{"44928", "44929"}, summary.NewIDs)
		assert.Empty(t, summary.Gone)
	})

	t.Run("pages after a failed page contribute ids", func(t *testing.T) {
		t.Parallel()

		f := newFakeSite()
		f.set(pageURL(1), listPage("1", "2"))
		f.fail(pageURL(2), sitediff.NewStatusError(pageURL(2), 503))
		f.set(pageURL(3), listPage("3", "4"))
		for _, id := range []string{"1", "2", "3", "4"} {
			f.set("https://cadical.example/jobs/"+id, detailPage(id))
		}
		state, sink := newMemState(), &recordSink{}

		summary, err := newRunner(f, state, sink).Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, []sitediff.ItemID{"1", "2", "3", "4"}, summary.NewIDs)
		require.Len(t, summary.FailedPages, 1)
		assert.Len(t, seenIDs(state.snapshot("cadical")), 4)
	})

	t.Run("detail fetches respect the site delay", func(t *testing.T) {
		t.Parallel()

		const delay = 15 * time.Millisecond
		f := newFakeSite()
		var ids []string
		for i := 0; i < 10; i++ {
			id := string(rune('a' + i))
			ids = append(ids, id)
			f.set("https://cadical.example/jobs/"+id, detailPage(id))
		}
		f.set(pageURL(1), listPageLetters(ids))

		site := testSite()
		site.IDRule = sitediff.IDRule{Pattern: `/jobs/([a-z])"`}
		site.Delay = sitediff.Ptr(delay)
		site.Concurrency = 4

		var (
			mu    sync.Mutex
			times []time.Time
		)
		limiter := crawl.NewSiteLimiter(site)
		limiter.OnDispatch = func(_ string, at time.Time) {
			mu.Lock()
			defer mu.Unlock()
			times = append(times, at)
		}

		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)
		r.Limiter = limiter

		summary, err := r.Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 10, summary.New)
		mu.Lock()
		defer mu.Unlock()
		require.GreaterOrEqual(t, len(times), 11)
		for i := 1; i < len(times); i++ {
			assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay)
		}
	})

	t.Run("stop when a page has only committed ids", func(t *testing.T) {
		t.Parallel()

		f := newFakeSite()
		f.set(pageURL(1), listPage("9", "1"))
		f.set(pageURL(2), listPage("2", "3"))
		f.set(pageURL(3), listPage("4"))
		f.set("https://cadical.example/jobs/9", detailPage("9"))
		state := newMemState()
		state.states["cadical"] = stateWith("1", "2", "3", "8")
		site := testSite()
		site.Pagination.StopWhenNoNewIDs = true

		summary, err := newRunner(f, state, &recordSink{}).Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Pages)
		assert.Equal(t, []sitediff.ItemID{"9"}, summary.NewIDs)
		assert.Zero(t, f.count(pageURL(3)))
		assert.Empty(t, summary.Gone, "an early stop leaves the diff incomplete")
	})

	t.Run("without the early stop committed pages are walked", func(t *testing.T) {
		t.Parallel()

		f := newFakeSite()
		f.set(pageURL(1), listPage("9", "1"))
		f.set(pageURL(2), listPage("2", "3"))
		f.set(pageURL(3), listPage("4"))
		f.set("https://cadical.example/jobs/9", detailPage("9"))
		f.set("https://cadical.example/jobs/4", detailPage("4"))
		state := newMemState()
		state.states["cadical"] = stateWith("1", "2", "3", "8")

		summary, err := newRunner(f, state, &recordSink{}).Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, []sitediff.ItemID{"9", "4"}, summary.NewIDs)
		assert.Equal(t, []sitediff.ItemID{"8"}, summary.Gone)
	})

	t.Run("a repeated last page ends pagination with a complete diff", func(t *testing.T) {
		t.Parallel()

		f := newFakeSite()
		for i := 1; i <= 50; i++ {
			f.set(pageURL(i), listPage("1", "2"))
		}
		f.set("https://cadical.example/jobs/2", detailPage("2"))
		state := newMemState()
		state.states["cadical"] = stateWith("1", "7")

		summary, err := newRunner(f, state, &recordSink{}).Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Pages)
		assert.Equal(t, []sitediff.ItemID{"2"}, summary.NewIDs)
		assert.Equal(t, []sitediff.ItemID{"7"}, summary.Gone)
	})

	t.Run("a walk cut by max pages reports nothing gone", func(t *testing.T) {
		t.Parallel()

		f := newFakeSite()
		f.set(pageURL(1), listPage("1"))
		f.set(pageURL(2), listPage("7"))
		state := newMemState()
		state.states["cadical"] = stateWith("1", "7")
		site := testSite()
		site.Pagination.MaxPages = 1

		summary, err := newRunner(f, state, &recordSink{}).Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Pages)
		assert.Empty(t, summary.Gone)
	})

	t.Run("max items defers the rest to a later run", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state, sink := newMemState(), &recordSink{}
		site := testSite()
		site.MaxItems = 2

		summary, err := newRunner(f, state, sink).Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 3, summary.New)
		assert.Equal(t, 1, summary.Deferred)
		assert.Equal(t, []sitediff.ItemID{"44928", "44929"}, sink.ids())
		assert.Zero(t, f.count("https://cadical.example/jobs/44930"))
		assert.NotContains(t, seenIDs(state.snapshot("cadical")), sitediff.ItemID("44930"))

		summary, err = newRunner(f, state, sink).Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, []sitediff.ItemID{"44930"}, summary.NewIDs)
		assert.Zero(t, summary.Deferred)
	})

	t.Run("invalid site fails before any fetch", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		site := testSite()
		site.ListURL = "https://cadical.example/jobs"

		summary, err := newRunner(f, newMemState(), &recordSink{}).Run(context.Background(), site)

		require.Error(t, err)
		assert.Nil(t, summary)
		assert.Equal(t, sitediff.EINVALID, sitediff.ErrorCode(err))
		assert.Empty(t, f.fetched())
	})

	t.Run("missing fetcher is a config error", func(t *testing.T) {
		t.Parallel()

		site := testSite()
		site.Fetch = sitediff.FetchBrowser

		_, err := newRunner(cadical(), newMemState(), &recordSink{}).Run(context.Background(), site)

		assert.Equal(t, sitediff.EINVALID, sitediff.ErrorCode(err))
	})

	t.Run("state load failure aborts the run", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state := newMemState()
		state.loadErr = sitediff.Errorf(sitediff.ESTATE, "disk on fire")

		summary, err := newRunner(f, state, &recordSink{}).Run(context.Background(), testSite())

		require.Error(t, err)
		require.NotNil(t, summary)
		assert.Equal(t, sitediff.ESTATE, sitediff.ErrorCode(summary.Err))
		assert.Empty(t, f.fetched())
	})

	t.Run("sink failure prevents commit", func(t *testing.T) {
		t.Parallel()

		state := newMemState()
		sink := &recordSink{err: errors.New("warehouse down")}

		summary, err := newRunner(cadical(), state, sink).Run(context.Background(), testSite())

		require.Error(t, err)
		assert.Equal(t, 3, summary.New)
		assert.Zero(t, summary.Committed)
		assert.Zero(t, state.snapshot("cadical").Len())
	})

	t.Run("canceled run commits nothing", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)

		ctx, cancel := context.WithCancel(context.Background())
		inner := f.fetcher()
		r.Fetchers = crawl.Fetchers{sitediff.FetchHTTP: &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string, opts sitediff.FetchOptions) (string, error) {
				if url == "https://cadical.example/jobs/44928" {
					cancel()
				}
				return inner.Fetch(ctx, url, opts)
			},
			CloseFn: func() error { return nil },
		}}

		summary, err := r.Run(ctx, testSite())

		require.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, summary)
		assert.Empty(t, sink.ids())
		assert.Zero(t, state.commits)
	})

	t.Run("commit each item", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		failing := "https://cadical.example/jobs/44930"
		f.fail(failing, sitediff.NewStatusError(failing, 500))
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)
		r.CommitEach = true

		summary, err := r.Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Committed)
		assert.Equal(t, []sitediff.ItemID{"44928", "44929"}, seenIDs(state.snapshot("cadical")))
		// Two item commits plus the closing last-run commit.
		assert.Equal(t, 3, state.commits)
		assert.ElementsMatch(t, []sitediff.ItemID{"44928", "44929"}, sink.ids())
	})

	t.Run("robots disallowed items are skipped and committed", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		state, sink := newMemState(), &recordSink{}
		r := newRunner(f, state, sink)
		r.Robots = &mock.RobotsChecker{
			AllowedFn: func(_ context.Context, url string, _ string) (bool, error) {
				return url != "https://cadical.example/jobs/44930", nil
			},
		}
		site := testSite()
		site.RespectRobots = true

		summary, err := r.Run(context.Background(), site)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Len(t, summary.Records, 2)
		assert.Zero(t, f.count("https://cadical.example/jobs/44930"))
		assert.Equal(t, 3, state.snapshot("cadical").Len())
	})

	t.Run("notifier receives the summary", func(t *testing.T) {
		t.Parallel()

		var got *sitediff.RunSummary
		r := newRunner(cadical(), newMemState(), &recordSink{})
		r.Notifier = &mock.Notifier{
			NotifyFn: func(_ context.Context, s *sitediff.RunSummary) error {
				got = s
				return errors.New("chat is down")
			},
		}

		summary, err := r.Run(context.Background(), testSite())

		require.NoError(t, err)
		assert.Same(t, summary, got)
		assert.Equal(t, runTime, got.FinishedAt)
	})

	t.Run("same site cannot run twice at once", func(t *testing.T) {
		t.Parallel()

		f := cadical()
		started := make(chan struct{})
		unblock := make(chan struct{})
		inner := f.fetcher()
		var once sync.Once
		r := newRunner(f, newMemState(), &recordSink{})
		r.Fetchers = crawl.Fetchers{sitediff.FetchHTTP: &mock.Fetcher{
			FetchFn: func(ctx context.Context, url string, opts sitediff.FetchOptions) (string, error) {
				once.Do(func() { close(started) })
				<-unblock
				return inner.Fetch(ctx, url, opts)
			},
			CloseFn: func() error { return nil },
		}}

		done := make(chan error, 1)
		go func() {
			_, err := r.Run(context.Background(), testSite())
			done <- err
		}()
		<-started

		_, err := r.Run(context.Background(), testSite())
		assert.Equal(t, sitediff.ECONFLICT, sitediff.ErrorCode(err))

		close(unblock)
		require.NoError(t, <-done)

		// The site can run again once the first run finished.
		_, err = r.Run(context.Background(), testSite())
		assert.NoError(t, err)
	})
}

func listPageLetters(ids []string) string {
	var s string
	for _, id := range ids {
		s += `<a href="/jobs/` + id + `"></a>`
	}
	return s
}
