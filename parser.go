package sitediff

// ParserKind identifies a structural parser variant.
type ParserKind string

// Supported parser variants.
const (
	ParserDefinitionList ParserKind = "deflist"
	ParserTable          ParserKind = "table"
	ParserJSONLD         ParserKind = "jsonld"
	ParserArticle        ParserKind = "article"
)

// Valid reports whether k names a known parser variant.
func (k ParserKind) Valid() bool {
	switch k {
	case ParserDefinitionList, ParserTable, ParserJSONLD, ParserArticle:
		return true
	}
	return false
}

// ParseResult holds the output of a structural parser.
type ParseResult struct {
	// Fields is the record built from the page.
	Fields Fields

	// Skipped counts non-fatal per-row failures (e.g. table rows whose
	// column count does not match the header).
	Skipped int
}

// Parser converts detail-page markup into record fields.
// Implementations are pure functions of their input: no network or state access.
type Parser interface {
	// Parse builds fields from content. Structural problems that make the
	// whole page unusable are reported as EPARSE errors.
	Parse(content string, spec ParserSpec) (*ParseResult, error)
}

// ParserRegistry resolves parser variants by kind.
type ParserRegistry interface {
	// Get returns the parser registered for kind, or nil.
	Get(kind ParserKind) Parser

	// Register adds a parser for kind, replacing any previous one.
	Register(kind ParserKind, parser Parser)
}

// Converter turns an HTML fragment into Markdown.
type Converter interface {
	Convert(html string) (string, error)
}
