package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	State sitediff.StateStore
	Sink  sitediff.RecordSink

	// NewFetchers builds the fetch strategies the given sites need.
	NewFetchers func(sites []sitediff.Site) (crawl.Fetchers, error)
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose bool   `short:"v" help:"Enable debug logging"`
	State   string `enum:"sqlite,json,mongo" default:"sqlite" help:"State backend (${enum})"`

	Run   RunCmd   `cmd:"" help:"Crawl sites and report new items"`
	Show  StateCmd `cmd:"" name:"state" help:"Show committed state for a site"`
	Reset ResetCmd `cmd:"" help:"Forget committed state for a site"`
	Sites SitesCmd `cmd:"" help:"List configured sites"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct {
	Config      string   `arg:"" type:"existingfile" help:"Site configuration file"`
	Site        []string `short:"s" help:"Only run these sites (repeatable)"`
	Concurrency int      `short:"c" default:"4" help:"Sites crawled at once"`
	CommitEach  bool     `help:"Commit state after every item instead of once per run"`
	Records     string   `enum:"jsonl,sqlite,none" default:"jsonl" help:"Record output (${enum})"`
	Stealth     bool     `help:"Apply stealth evasions to browser pages"`
	Headful     bool     `help:"Show the browser window"`
	NoSandbox   bool     `help:"Disable the Chrome sandbox (needed as root in containers)"`
	Quiet       bool     `short:"q" help:"Hide per-page progress"`

	MaxPages int            `help:"Override every site's list page limit (0 keeps the configured value)"`
	MaxItems int            `help:"Fetch at most this many new items per site; the rest wait for a later run"`
	Delay    *time.Duration `help:"Override every site's request spacing (0 disables it)"`
}

// StateCmd is the "state" subcommand.
type StateCmd struct {
	Config string `arg:"" type:"existingfile" help:"Site configuration file"`
	Site   string `arg:"" help:"Site name"`
	Limit  int    `short:"n" default:"20" help:"Most recent identifiers to list (0 for none)"`
}

// ResetCmd is the "reset" subcommand.
type ResetCmd struct {
	Config string `arg:"" type:"existingfile" help:"Site configuration file"`
	Site   string `arg:"" help:"Site name"`
	Force  bool   `help:"Confirm reset"`
}

// SitesCmd is the "sites" subcommand.
type SitesCmd struct {
	Config string `arg:"" type:"existingfile" help:"Site configuration file"`
}
