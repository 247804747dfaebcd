package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Run executes the state command.
func (c *StateCmd) Run(deps *Dependencies) error {
	if _, err := loadSites(c.Config, c.Site); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	state, err := deps.State.Load(deps.Ctx, c.Site)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	if state.Len() == 0 && state.LastRun.IsZero() {
		fmt.Fprintf(deps.Stdout, "No state for %q. Use 'sitediff run' to crawl it.\n", c.Site)
		return nil
	}

	fmt.Fprintf(deps.Stdout, "Site:     %s\n", state.Site)
	fmt.Fprintf(deps.Stdout, "Seen:     %d\n", state.Len())
	fmt.Fprintf(deps.Stdout, "Last run: %s\n", formatTime(state.LastRun))

	ids := state.IDs()
	if c.Limit <= 0 || len(ids) == 0 {
		return nil
	}
	if len(ids) > c.Limit {
		ids = ids[len(ids)-c.Limit:]
	}

	t := newTable(deps.Stdout)
	t.AppendHeader(table.Row{"ID", "First seen"})
	for i := len(ids) - 1; i >= 0; i-- {
		t.AppendRow(table.Row{ids[i], formatTime(state.Seen[ids[i]])})
	}
	t.Render()
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
