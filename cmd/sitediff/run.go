package main

import (
	"fmt"
	"sync"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/fwojciec/sitediff/goquery"
	sdhttp "github.com/fwojciec/sitediff/http"
	"github.com/fwojciec/sitediff/htmltomarkdown"
	"github.com/fwojciec/sitediff/readability"
	sdslog "github.com/fwojciec/sitediff/slog"
	"github.com/fwojciec/sitediff/trafilatura"
	"github.com/fwojciec/sitediff/yaml"
)

// Run executes the run command.
func (c *RunCmd) Run(deps *Dependencies) error {
	sites, err := loadSites(c.Config, c.Site...)
	if err == nil {
		err = c.override(sites)
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	fetchers, err := deps.NewFetchers(sites)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %v\n", err)
		return err
	}
	defer fetchers.Close()

	extractor := goquery.NewIDExtractor()
	parsers := goquery.NewRegistry()
	parsers.Register(sitediff.ParserArticle, trafilatura.NewArticleParser(
		htmltomarkdown.NewConverter(),
		trafilatura.WithFallback(readability.NewExtractor()),
	))

	runner := &crawl.Runner{
		Fetchers:   fetchers,
		Extractor:  extractor,
		Matcher:    extractor,
		Parsers:    sdslog.NewLoggingRegistry(parsers, deps.Logger),
		State:      deps.State,
		Limiter:    crawl.NewSiteLimiter(sites...),
		Sink:       deps.Sink,
		Notifier:   sdslog.NewNotifier(deps.Logger),
		Robots:     sdhttp.NewRobotsChecker(nil),
		Logger:     deps.Logger,
		CommitEach: c.CommitEach,
	}
	if !c.Quiet {
		runner.Progress = progressPrinter(deps)
	}

	scheduler := &crawl.Scheduler{Runner: runner, Concurrency: c.Concurrency, Logger: deps.Logger}
	outcomes := scheduler.RunAll(deps.Ctx, sites)

	renderOutcomes(deps.Stdout, outcomes)

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return sitediff.Errorf(sitediff.EINTERNAL, "%s failed", crawl.FormatCount(failed, "site", "sites"))
	}
	return nil
}

// progressPrinter writes one line per list page and failed item. Runs of
// several sites call it concurrently.
func progressPrinter(deps *Dependencies) crawl.ProgressFunc {
	var mu sync.Mutex
	return func(ev crawl.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case crawl.ProgressPage:
			fmt.Fprintf(deps.Stdout, "  [%s] page %d: %s  %s\n",
				ev.Site, ev.Page, crawl.FormatCount(ev.IDs, "id", "ids"), crawl.TruncateURL(ev.URL, 60))
		case crawl.ProgressFailed:
			fmt.Fprintf(deps.Stderr, "  [%s] skip %s: %v\n", ev.Site, crawl.TruncateURL(ev.URL, 60), ev.Error)
		case crawl.ProgressFinished:
			fmt.Fprintf(deps.Stdout, "  [%s] done: %d/%d new items retrieved\n", ev.Site, ev.Completed, ev.Total)
		}
	}
}

// override applies the command-line limits to every selected site.
func (c *RunCmd) override(sites []sitediff.Site) error {
	if c.MaxPages < 0 || c.MaxItems < 0 || (c.Delay != nil && *c.Delay < 0) {
		return sitediff.Errorf(sitediff.EINVALID, "--max-pages, --max-items and --delay must not be negative")
	}
	for i := range sites {
		if c.MaxPages > 0 {
			sites[i].Pagination.MaxPages = c.MaxPages
		}
		if c.MaxItems > 0 {
			sites[i].MaxItems = c.MaxItems
		}
		if c.Delay != nil {
			sites[i].Delay = sitediff.Ptr(*c.Delay)
		}
	}
	return nil
}

func loadSites(path string, names ...string) ([]sitediff.Site, error) {
	sites, err := yaml.Load(path)
	if err != nil {
		return nil, err
	}
	return yaml.Select(sites, names...)
}
