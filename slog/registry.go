package slog

import (
	"log/slog"
	"time"

	"github.com/fwojciec/sitediff"
)

// Ensure LoggingRegistry implements sitediff.ParserRegistry.
var _ sitediff.ParserRegistry = (*LoggingRegistry)(nil)

// LoggingRegistry wraps a ParserRegistry so every parser it hands out logs
// its parse results.
type LoggingRegistry struct {
	next   sitediff.ParserRegistry
	logger *slog.Logger
}

// NewLoggingRegistry creates a new LoggingRegistry.
func NewLoggingRegistry(next sitediff.ParserRegistry, logger *slog.Logger) *LoggingRegistry {
	return &LoggingRegistry{next: next, logger: logger}
}

// Get returns the wrapped registry's parser decorated with logging.
func (r *LoggingRegistry) Get(kind sitediff.ParserKind) sitediff.Parser {
	p := r.next.Get(kind)
	if p == nil {
		r.logger.Warn("parser not registered", "kind", string(kind))
		return nil
	}
	return &loggingParser{next: p, kind: kind, logger: r.logger}
}

// Register delegates to the wrapped registry.
func (r *LoggingRegistry) Register(kind sitediff.ParserKind, parser sitediff.Parser) {
	r.next.Register(kind, parser)
}

type loggingParser struct {
	next   sitediff.Parser
	kind   sitediff.ParserKind
	logger *slog.Logger
}

func (p *loggingParser) Parse(content string, spec sitediff.ParserSpec) (res *sitediff.ParseResult, err error) {
	defer func(begin time.Time) {
		var fields, skipped int
		if res != nil {
			fields, skipped = len(res.Fields), res.Skipped
		}
		p.logger.Debug("parse",
			"kind", string(p.kind),
			"fields", fields,
			"skipped", skipped,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return p.next.Parse(content, spec)
}
