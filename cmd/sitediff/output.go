package main

import (
	"io"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// renderOutcomes prints one summary row per site, followed by the new
// identifiers and failures of each run.
func renderOutcomes(w io.Writer, outcomes []crawl.Outcome) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Site", "Pages", "New", "Seen", "Gone", "Failed", "Skipped", "Deferred", "Committed", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})

	for _, o := range outcomes {
		s := o.Summary
		if s == nil {
			t.AppendRow(table.Row{o.Site, "", "", "", "", "", "", "", "", "", status(o.Err)})
			continue
		}
		t.AppendRow(table.Row{
			s.Site, s.Pages, s.New, s.Seen, len(s.Gone), s.Failed, s.Skipped, s.Deferred, s.Committed,
			s.Duration().Round(time.Millisecond), status(o.Err),
		})
	}
	t.Render()

	for _, o := range outcomes {
		if o.Summary == nil {
			continue
		}
		renderDetails(w, o.Summary)
	}
}

func renderDetails(w io.Writer, s *sitediff.RunSummary) {
	if len(s.NewIDs) == 0 && len(s.FailedItems) == 0 && len(s.FailedPages) == 0 && len(s.Gone) == 0 {
		return
	}
	t := newTable(w)
	t.SetTitle(s.Site)
	t.AppendHeader(table.Row{"Kind", "ID / Page", "URL", "Error"})
	for _, id := range s.NewIDs {
		t.AppendRow(table.Row{"new", id, "", ""})
	}
	for _, id := range s.Gone {
		t.AppendRow(table.Row{"gone", id, "", ""})
	}
	for _, f := range s.FailedItems {
		t.AppendRow(table.Row{"failed", f.ID, crawl.TruncateURL(f.URL, 60), f.Err})
	}
	for _, p := range s.FailedPages {
		t.AppendRow(table.Row{"page", p.Index, crawl.TruncateURL(p.URL, 60), p.Err})
	}
	t.Render()
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return sitediff.ErrorMessage(err)
}
