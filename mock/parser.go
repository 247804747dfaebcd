package mock

import "github.com/fwojciec/sitediff"

var (
	_ sitediff.IDExtractor    = (*IDExtractor)(nil)
	_ sitediff.ContentMatcher = (*ContentMatcher)(nil)
	_ sitediff.Parser         = (*Parser)(nil)
	_ sitediff.ParserRegistry = (*ParserRegistry)(nil)
)

// IDExtractor is a mock implementation of sitediff.IDExtractor.
type IDExtractor struct {
	ExtractFn func(content string, rule sitediff.IDRule) ([]sitediff.ItemID, error)
}

func (e *IDExtractor) Extract(content string, rule sitediff.IDRule) ([]sitediff.ItemID, error) {
	return e.ExtractFn(content, rule)
}

// Parser is a mock implementation of sitediff.Parser.
type Parser struct {
	ParseFn func(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error)
}

func (p *Parser) Parse(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	return p.ParseFn(content, spec)
}

// ParserRegistry is a mock implementation of sitediff.ParserRegistry.
type ParserRegistry struct {
	GetFn      func(kind sitediff.ParserKind) sitediff.Parser
	RegisterFn func(kind sitediff.ParserKind, parser sitediff.Parser)
}

func (r *ParserRegistry) Get(kind sitediff.ParserKind) sitediff.Parser {
	return r.GetFn(kind)
}

func (r *ParserRegistry) Register(kind sitediff.ParserKind, parser sitediff.Parser) {
	r.RegisterFn(kind, parser)
}

// ContentMatcher is a mock implementation of sitediff.ContentMatcher.
type ContentMatcher struct {
	HasContentFn func(content string, p sitediff.Pagination) (bool, error)
}

func (m *ContentMatcher) HasContent(content string, p sitediff.Pagination) (bool, error) {
	return m.HasContentFn(content, p)
}

var _ sitediff.Converter = (*Converter)(nil)

// Converter is a mock implementation of sitediff.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
