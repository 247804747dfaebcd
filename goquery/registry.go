package goquery

import (
	"sync"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.ParserRegistry = (*Registry)(nil)

// Registry maps parser kinds to parser variants. NewRegistry preloads the
// markup-based variants; others (such as the article parser) are registered
// by the caller.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[sitediff.ParserKind]sitediff.Parser
}

// NewRegistry creates a Registry with the definition-list, table and
// JSON-LD parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[sitediff.ParserKind]sitediff.Parser)}
	r.Register(sitediff.ParserDefinitionList, NewDefinitionListParser())
	r.Register(sitediff.ParserTable, NewTableParser())
	r.Register(sitediff.ParserJSONLD, NewJSONLDParser())
	return r
}

// Get returns the parser for kind, or nil if none is registered.
func (r *Registry) Get(kind sitediff.ParserKind) sitediff.Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parsers[kind]
}

// Register adds a parser for kind.
// If a parser is already registered for kind, it is replaced.
func (r *Registry) Register(kind sitediff.ParserKind, parser sitediff.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[kind] = parser
}

// Kinds returns the registered parser kinds.
func (r *Registry) Kinds() []sitediff.ParserKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]sitediff.ParserKind, 0, len(r.parsers))
	for k := range r.parsers {
		kinds = append(kinds, k)
	}
	return kinds
}
