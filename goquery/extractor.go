package goquery

import (
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/sitediff"
)

var (
	_ sitediff.IDExtractor    = (*IDExtractor)(nil)
	_ sitediff.ContentMatcher = (*IDExtractor)(nil)
)

// IDExtractor pulls item identifiers from list pages using regular
// expressions and CSS selectors. Compiled rules are cached, so one
// extractor should be shared across pages and sites.
//
// IDExtractor is safe for concurrent use.
type IDExtractor struct {
	patterns  sync.Map // string -> *regexp.Regexp
	selectors sync.Map // string -> cascadia.Selector
}

// NewIDExtractor creates a new IDExtractor.
func NewIDExtractor() *IDExtractor {
	return &IDExtractor{}
}

// Extract returns the unique identifiers matched by rule, in first-seen order.
//
// With only a pattern, every match in the raw content contributes its first
// non-empty capture group (or the whole match when the pattern has no groups).
// With a selector, each matched element contributes its Attr value, or its
// trimmed text when Attr is empty; a pattern then narrows that value the same way.
func (e *IDExtractor) Extract(content string, rule sitediff.IDRule) ([]sitediff.ItemID, error) {
	var re *regexp.Regexp
	if rule.Pattern != "" {
		var err error
		if re, err = e.pattern(rule.Pattern); err != nil {
			return nil, sitediff.Errorf(sitediff.EEXTRACT, "invalid id pattern %q: %v", rule.Pattern, err)
		}
	}

	var ids idList
	if rule.Selector == "" {
		if re == nil {
			return nil, sitediff.Errorf(sitediff.EEXTRACT, "id rule needs a pattern or a selector")
		}
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			ids.add(firstGroup(m))
		}
		return ids.list, nil
	}

	sel, err := e.selector(rule.Selector)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.EEXTRACT, "invalid id selector %q: %v", rule.Selector, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		// Unreadable markup has no identifiers.
		return nil, nil
	}

	doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		var value string
		if rule.Attr != "" {
			value, _ = s.Attr(rule.Attr)
		} else {
			value = s.Text()
		}
		value = strings.TrimSpace(value)
		if re != nil {
			m := re.FindStringSubmatch(value)
			if m == nil {
				return
			}
			value = firstGroup(m)
		}
		ids.add(value)
	})

	return ids.list, nil
}

// HasContent reports whether content matches the pagination's content
// selector and content pattern. Both must match when both are set.
func (e *IDExtractor) HasContent(content string, p sitediff.Pagination) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, nil
	}

	if p.ContentPattern != "" {
		re, err := e.pattern(p.ContentPattern)
		if err != nil {
			return false, sitediff.Errorf(sitediff.EEXTRACT, "invalid content pattern %q: %v", p.ContentPattern, err)
		}
		if !re.MatchString(content) {
			return false, nil
		}
	}

	if p.ContentSelector != "" {
		sel, err := e.selector(p.ContentSelector)
		if err != nil {
			return false, sitediff.Errorf(sitediff.EEXTRACT, "invalid content selector %q: %v", p.ContentSelector, err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return false, nil
		}
		if doc.FindMatcher(sel).Length() == 0 {
			return false, nil
		}
	}

	return true, nil
}

func (e *IDExtractor) pattern(expr string) (*regexp.Regexp, error) {
	if v, ok := e.patterns.Load(expr); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.patterns.Store(expr, re)
	return re, nil
}

func (e *IDExtractor) selector(expr string) (cascadia.Selector, error) {
	if v, ok := e.selectors.Load(expr); ok {
		return v.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.selectors.Store(expr, sel)
	return sel, nil
}

// firstGroup returns the first non-empty capture group of m, or the whole
// match when there is none.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return m[0]
}

// idList accumulates identifiers in first-seen order without duplicates.
type idList struct {
	seen map[sitediff.ItemID]struct{}
	list []sitediff.ItemID
}

func (l *idList) add(value string) {
	if value == "" {
		return
	}
	if l.seen == nil {
		l.seen = make(map[sitediff.ItemID]struct{})
	}
	id := sitediff.ItemID(value)
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.list = append(l.list, id)
}
