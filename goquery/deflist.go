package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitediff"
)

var _ sitediff.Parser = (*DefinitionListParser)(nil)

// DefinitionListParser reads dt/dd pairs in document order. Each dt opens a
// field keyed by its text; the dd elements that follow it, up to the next dt,
// form the value, one line per dd. Repeated keys are suffixed by Fields.Add.
type DefinitionListParser struct{}

// NewDefinitionListParser creates a new DefinitionListParser.
func NewDefinitionListParser() *DefinitionListParser {
	return &DefinitionListParser{}
}

// Parse builds fields from every definition list in scope.
func (p *DefinitionListParser) Parse(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	return parse(content, spec, func(root *goquery.Selection, res *sitediff.ParseResult) {
		root.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			key := label(dt)
			if key == "" {
				return
			}
			var values []string
			for sib := dt.Next(); sib.Length() > 0 && !sib.Is("dt"); sib = sib.Next() {
				if !sib.Is("dd") {
					continue
				}
				if v := Text(sib); v != "" {
					values = append(values, v)
				}
			}
			res.Fields.Add(key, strings.Join(values, "\n"))
		})
	})
}
