package main

import (
	"fmt"

	"github.com/fwojciec/sitediff"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Run executes the sites command.
func (c *SitesCmd) Run(deps *Dependencies) error {
	sites, err := loadSites(c.Config)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", sitediff.ErrorMessage(err))
		return err
	}

	t := newTable(deps.Stdout)
	t.AppendHeader(table.Row{"Site", "Fetch", "Parser", "Delay", "Concurrency", "List URL"})
	for _, s := range sites {
		t.AppendRow(table.Row{s.Name, s.Fetch, s.Parser.Kind, s.Spacing(), s.Concurrency, s.ListURL})
	}
	t.Render()
	return nil
}
