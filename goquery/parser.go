package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitediff"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parse runs the shared parser pipeline: extra fields from the whole
// document, the variant's fields from the scoped selection, then key mapping.
// A page that yields no fields at all is a parse error.
func parse(content string, spec sitediff.ParserSpec, fn func(root *goquery.Selection, res *sitediff.ParseResult)) (*sitediff.ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EPARSE, "parsing HTML: %v", err)
	}

	res := &sitediff.ParseResult{}
	addExtras(doc.Selection, spec.Extra, &res.Fields)

	root := doc.Selection
	if spec.Scope != "" {
		root = doc.Find(spec.Scope)
		if root.Length() == 0 {
			return nil, sitediff.Errorf(sitediff.EPARSE, "scope %q matched nothing", spec.Scope)
		}
	}

	n := len(res.Fields)
	fn(root, res)
	if len(res.Fields) == n {
		return nil, sitediff.Errorf(sitediff.EPARSE, "no %s fields found", spec.Kind)
	}

	res.Fields = res.Fields.Rename(spec.Mapping)
	return res, nil
}

// ExtraFields evaluates named selectors against content. Each selector
// contributes the text of its first match; selectors matching nothing are
// left out.
func ExtraFields(content string, extras []sitediff.ExtraField) (sitediff.Fields, error) {
	if len(extras) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EPARSE, "parsing HTML: %v", err)
	}
	var fields sitediff.Fields
	addExtras(doc.Selection, extras, &fields)
	return fields, nil
}

// Scope returns the outer HTML of the elements matched by selector.
// An empty selector returns content unchanged.
func Scope(content, selector string) (string, error) {
	if selector == "" {
		return content, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", sitediff.Errorf(sitediff.EPARSE, "parsing HTML: %v", err)
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", sitediff.Errorf(sitediff.EPARSE, "scope %q matched nothing", selector)
	}
	var b strings.Builder
	for _, n := range sel.Nodes {
		if err := html.Render(&b, n); err != nil {
			return "", sitediff.Errorf(sitediff.EPARSE, "rendering scope: %v", err)
		}
	}
	return b.String(), nil
}

func addExtras(doc *goquery.Selection, extras []sitediff.ExtraField, fields *sitediff.Fields) {
	for _, extra := range extras {
		if extra.Name == "" || extra.Selector == "" {
			continue
		}
		if v := Text(doc.Find(extra.Selector).First()); v != "" {
			fields.Add(extra.Name, v)
		}
	}
}

// Text returns the visible text of s. Line breaks and block elements start
// new lines; lines are trimmed of markup indentation and blank lines are
// dropped. Spacing inside a line, including ideographic spaces, is kept.
func Text(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return cleanText(b.String())
}

// label is Text folded onto a single line, used for keys.
func label(s *goquery.Selection) string {
	return strings.Join(strings.Fields(Text(s)), " ")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Br:
			b.WriteByte('\n')
			return
		case atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		}
	}

	block := n.Type == html.ElementNode && isBlock(n.DataAtom)
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table,
		atom.Dl, atom.Dt, atom.Dd, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Blockquote, atom.Pre:
		return true
	}
	return false
}

// lineSpace is the whitespace markup indentation is made of.
const lineSpace = " \t\r\f\v"

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.Trim(line, lineSpace))
	}
	return strings.Join(out, "\n")
}
