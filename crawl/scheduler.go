package crawl

import (
	"context"
	"log/slog"

	"github.com/fwojciec/sitediff"
	"golang.org/x/sync/errgroup"
)

// DefaultSiteConcurrency is the number of sites run at once by default.
const DefaultSiteConcurrency = 4

// Outcome is the result of one site's run within RunAll.
type Outcome struct {
	Site    string
	Summary *sitediff.RunSummary
	Err     error
}

// Scheduler runs several sites concurrently under a global bound.
type Scheduler struct {
	Runner      *Runner
	Concurrency int
	Logger      *slog.Logger
}

// RunAll runs every site and returns one outcome per site, in input order.
// A failing site never cancels the others.
func (s *Scheduler) RunAll(ctx context.Context, sites []sitediff.Site) []Outcome {
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSiteConcurrency
	}

	outcomes := make([]Outcome, len(sites))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, site := range sites {
		g.Go(func() error {
			summary, err := s.Runner.Run(ctx, site)
			outcomes[i] = Outcome{Site: site.Name, Summary: summary, Err: err}
			if err != nil && s.Logger != nil {
				s.Logger.Error("site run failed", "site", site.Name, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
