// Package trafilatura parses prose detail pages into article records.
package trafilatura

import (
	"bytes"
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/goquery"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// Ensure ArticleParser implements sitediff.Parser at compile time.
var _ sitediff.Parser = (*ArticleParser)(nil)

// Field names produced by ArticleParser.
const (
	FieldTitle       = "title"
	FieldAuthor      = "author"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldBody        = "body"
)

// ArticleParser extracts the main content of a page with go-trafilatura and
// returns its metadata plus the body, rendered as Markdown when a converter
// is configured and as plain text otherwise.
type ArticleParser struct {
	converter sitediff.Converter
	fallback  Fallback
}

// Fallback extracts an article from pages trafilatura finds no content in.
type Fallback interface {
	ExtractArticle(html string) (title, contentHTML string, err error)
}

// Option configures an ArticleParser.
type Option func(*ArticleParser)

// WithFallback sets a second extractor tried when trafilatura fails or
// returns an empty body.
func WithFallback(f Fallback) Option {
	return func(p *ArticleParser) {
		p.fallback = f
	}
}

// NewArticleParser creates a new ArticleParser. A nil converter yields
// plain-text bodies.
func NewArticleParser(converter sitediff.Converter, opts ...Option) *ArticleParser {
	p := &ArticleParser{converter: converter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the article in scope.
func (p *ArticleParser) Parse(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, sitediff.Errorf(sitediff.EPARSE, "empty HTML input")
	}

	fields, err := goquery.ExtraFields(content, spec.Extra)
	if err != nil {
		return nil, err
	}

	scoped, err := goquery.Scope(content, spec.Scope)
	if err != nil {
		return nil, err
	}

	result, err := trafilatura.Extract(strings.NewReader(scoped), trafilatura.Options{
		EnableFallback: true,
	})
	var body string
	if err == nil {
		if body, err = p.body(result); err != nil {
			return nil, err
		}
	}
	if body == "" && p.fallback != nil {
		return p.parseFallback(scoped, fields, spec)
	}
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EPARSE, "extracting article: %v", err)
	}
	if body == "" {
		return nil, sitediff.Errorf(sitediff.EPARSE, "no article content found")
	}

	addIfSet(&fields, FieldTitle, result.Metadata.Title)
	addIfSet(&fields, FieldAuthor, result.Metadata.Author)
	if !result.Metadata.Date.IsZero() {
		fields.Add(FieldDate, result.Metadata.Date.Format("2006-01-02"))
	}
	addIfSet(&fields, FieldDescription, result.Metadata.Description)
	fields.Add(FieldBody, body)

	return &sitediff.ParseResult{Fields: fields.Rename(spec.Mapping)}, nil
}

func (p *ArticleParser) body(result *trafilatura.ExtractResult) (string, error) {
	if p.converter == nil || result.ContentNode == nil {
		return strings.TrimSpace(result.ContentText), nil
	}
	contentHTML, err := renderNode(result.ContentNode)
	if err != nil {
		return "", sitediff.Errorf(sitediff.EPARSE, "rendering article: %v", err)
	}
	return p.render(contentHTML)
}

func (p *ArticleParser) parseFallback(scoped string, fields sitediff.Fields, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	title, contentHTML, err := p.fallback.ExtractArticle(scoped)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EPARSE, "extracting article: %v", err)
	}
	body, err := p.render(contentHTML)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, sitediff.Errorf(sitediff.EPARSE, "no article content found")
	}
	addIfSet(&fields, FieldTitle, title)
	fields.Add(FieldBody, body)
	return &sitediff.ParseResult{Fields: fields.Rename(spec.Mapping)}, nil
}

// render turns an HTML fragment into Markdown, or plain text without a
// converter.
func (p *ArticleParser) render(contentHTML string) (string, error) {
	if strings.TrimSpace(contentHTML) == "" {
		return "", nil
	}
	if p.converter != nil {
		return p.converter.Convert(contentHTML)
	}
	doc, err := gq.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return "", sitediff.Errorf(sitediff.EPARSE, "parsing article: %v", err)
	}
	return goquery.Text(doc.Selection), nil
}

func addIfSet(fields *sitediff.Fields, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fields.Add(key, value)
	}
}

// renderNode converts an html.Node to a string.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
