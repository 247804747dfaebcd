package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/crawl"
	"github.com/fwojciec/sitediff/fs"
	"github.com/fwojciec/sitediff/mongo"
	sdslog "github.com/fwojciec/sitediff/slog"
	"github.com/fwojciec/sitediff/sqlite"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is not an error.
	_ = godotenv.Load()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// DBPath is the SQLite database for state and records (SITEDIFF_DB).
	DBPath string

	// StateDir holds per-site JSON state files (SITEDIFF_STATE_DIR).
	StateDir string

	// OutDir receives JSONL record files (SITEDIFF_OUT).
	OutDir string

	// MongoURI is the MongoDB connection string (SITEDIFF_MONGO_URI).
	MongoURI string

	// SQLite database, opened when a command needs it.
	DB *sqlite.DB

	// Fetchers, when set, replaces the fetchers built from the config.
	// Used for end-to-end testing.
	Fetchers crawl.Fetchers

	closers []func() error
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath:   envOr("SITEDIFF_DB", filepath.Join(dataDir(), "sitediff.db")),
		StateDir: envOr("SITEDIFF_STATE_DIR", filepath.Join(dataDir(), "state")),
		OutDir:   envOr("SITEDIFF_OUT", "out"),
		MongoURI: os.Getenv("SITEDIFF_MONGO_URI"),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	var err error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if cerr := m.closers[i](); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.closers = nil
	return err
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("sitediff"),
		kong.Description("Incrementally crawl listing sites and report new items."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'sitediff --help' to see available commands")
	}
	if cmd := args[0]; cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	defer m.Close()

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	command := strings.Fields(kongCtx.Command())[0]
	if command != "sites" {
		state, err := m.openState(ctx, cli.State)
		if err != nil {
			return err
		}
		deps.State = state
		if cli.Verbose {
			deps.State = sdslog.NewLoggingStateStore(state, deps.Logger)
		}
	}

	if command == "run" {
		sink, err := m.openSink(ctx, cli.Run.Records)
		if err != nil {
			return err
		}
		deps.Sink = sink
		deps.NewFetchers = m.fetcherFactory(&cli.Run, deps.Logger, cli.Verbose)
	}

	return kongCtx.Run(deps)
}

func (m *Main) openDB(ctx context.Context) (*sqlite.DB, error) {
	if m.DB != nil {
		return m.DB, nil
	}
	if m.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(m.DBPath), 0755); err != nil {
			return nil, err
		}
	}
	db := sqlite.NewDB(m.DBPath)
	if err := db.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w (set SITEDIFF_DB to use a different path)", m.DBPath, err)
	}
	m.DB = db
	m.closers = append(m.closers, db.Close)
	return db, nil
}

func (m *Main) openState(ctx context.Context, kind string) (sitediff.StateStore, error) {
	switch kind {
	case "json":
		return fs.NewStateStore(m.StateDir), nil
	case "mongo":
		if m.MongoURI == "" {
			return nil, sitediff.Errorf(sitediff.EINVALID, "SITEDIFF_MONGO_URI must be set for --state=mongo")
		}
		store, err := mongo.Connect(ctx, m.MongoURI, "sitediff", mongo.DefaultCollection)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, store.Close)
		return store, nil
	default:
		db, err := m.openDB(ctx)
		if err != nil {
			return nil, err
		}
		return sqlite.NewStateStore(db), nil
	}
}

func (m *Main) openSink(ctx context.Context, kind string) (sitediff.RecordSink, error) {
	switch kind {
	case "none":
		return nil, nil
	case "sqlite":
		db, err := m.openDB(ctx)
		if err != nil {
			return nil, err
		}
		return sqlite.NewRecordStore(db), nil
	default:
		return fs.NewRecordWriter(m.OutDir), nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitediff"
	}
	return filepath.Join(home, ".sitediff")
}
