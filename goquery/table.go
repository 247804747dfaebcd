package goquery

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitediff"
)

var _ sitediff.Parser = (*TableParser)(nil)

// TableParser reads HTML tables.
//
// A table whose every row is a header cell followed by data cells is read as
// key/value pairs. Any other table takes its field names from the thead row,
// or the first row when there is no thead, and aligns each following row to
// them by column index. Rows whose cell count differs from the header are
// skipped and counted. All rows flatten into one record; repeated names are
// suffixed by Fields.Add.
type TableParser struct{}

// NewTableParser creates a new TableParser.
func NewTableParser() *TableParser {
	return &TableParser{}
}

// Parse builds fields from every outermost table in scope.
func (p *TableParser) Parse(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	return parse(content, spec, func(root *goquery.Selection, res *sitediff.ParseResult) {
		tables := root.Find("table").Not("table table")
		if root.Is("table") {
			tables = root
		}
		tables.Each(func(_ int, tbl *goquery.Selection) {
			parseTable(tbl, res)
		})
	})
}

func parseTable(tbl *goquery.Selection, res *sitediff.ParseResult) {
	rows := tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(tbl)
	})
	if rows.Length() == 0 {
		return
	}

	if isRowHeaderTable(rows) {
		rows.Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("th, td")
			key := label(cells.First())
			if key == "" {
				return
			}
			var values []string
			cells.Slice(1, cells.Length()).Each(func(_ int, td *goquery.Selection) {
				if v := Text(td); v != "" {
					values = append(values, v)
				}
			})
			res.Fields.Add(key, strings.Join(values, "\n"))
		})
		return
	}

	headerRow := tbl.Find("thead tr").First()
	if headerRow.Length() == 0 || !headerRow.Closest("table").IsSelection(tbl) {
		headerRow = rows.First()
	}
	var header []string
	headerRow.ChildrenFiltered("th, td").Each(func(i int, cell *goquery.Selection) {
		name := label(cell)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		header = append(header, name)
	})

	rows.Each(func(_ int, tr *goquery.Selection) {
		if tr.IsSelection(headerRow) || tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() != len(header) {
			res.Skipped++
			return
		}
		cells.Each(func(i int, cell *goquery.Selection) {
			res.Fields.Add(header[i], Text(cell))
		})
	})
}

// isRowHeaderTable reports whether every row starts with a th followed only
// by td cells.
func isRowHeaderTable(rows *goquery.Selection) bool {
	ok := true
	rows.EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() < 2 || !cells.First().Is("th") {
			ok = false
			return false
		}
		if cells.Slice(1, cells.Length()).Filter("th").Length() > 0 {
			ok = false
			return false
		}
		return true
	})
	return ok
}
