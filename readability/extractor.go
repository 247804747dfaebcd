// Package readability extracts the main article of a page with
// go-readability. It backs up the trafilatura article parser.
package readability

import (
	"strings"

	"github.com/fwojciec/sitediff"
	"github.com/fwojciec/sitediff/trafilatura"
	"github.com/go-shiori/go-readability"
)

// Ensure Extractor implements trafilatura.Fallback at compile time.
var _ trafilatura.Fallback = (*Extractor)(nil)

// Extractor wraps go-readability to extract main content from HTML.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractArticle returns the article title and its content as HTML.
func (e *Extractor) ExtractArticle(rawHTML string) (title, contentHTML string, err error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", "", sitediff.Errorf(sitediff.EPARSE, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err != nil {
		return "", "", sitediff.Errorf(sitediff.EPARSE, "readability: %v", err)
	}
	return strings.TrimSpace(article.Title), article.Content, nil
}
