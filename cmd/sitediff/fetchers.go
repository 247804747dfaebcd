package main

import (
	"fmt"
	"log/slog"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	sdhttp "github.com/fwojciec/sitediff/http"
	"github.com/fwojciec/sitediff/rod"
	sdslog "github.com/fwojciec/sitediff/slog"
)

// fetcherFactory returns a builder that starts only the strategies the
// selected sites use, so a browser is never launched for HTTP-only runs.
func (m *Main) fetcherFactory(cmd *RunCmd, logger *slog.Logger, verbose bool) func([]sitediff.Site) (crawl.Fetchers, error) {
	return func(sites []sitediff.Site) (crawl.Fetchers, error) {
		if m.Fetchers != nil {
			return m.Fetchers, nil
		}

		fetchers := crawl.Fetchers{}
		for _, s := range sites {
			if _, ok := fetchers[s.Fetch]; ok {
				continue
			}
			switch s.Fetch {
			case sitediff.FetchBrowser:
				f, err := rod.NewFetcher(
					rod.WithStealth(cmd.Stealth),
					rod.WithManagerOptions(
						rod.WithHeadless(!cmd.Headful),
						rod.WithNoSandbox(cmd.NoSandbox),
					),
				)
				if err != nil {
					_ = fetchers.Close()
					return nil, fmt.Errorf("failed to start browser (Chrome or Chromium must be installed): %w", err)
				}
				fetchers[sitediff.FetchBrowser] = f
			default:
				fetchers[sitediff.FetchHTTP] = sdhttp.NewFetcher()
			}
		}

		if verbose {
			for kind, f := range fetchers {
				fetchers[kind] = sdslog.NewLoggingFetcher(f, logger)
			}
		}
		return fetchers, nil
	}
}
