// Package extract implements DOM field and table extraction over rendered
// assessor pages. The source renders different grid widgets for different
// data sections with inconsistent markup, so both primitives cascade through
// an ordered list of structural conventions and treat absence as an empty
// result, never an error. Partial records are valid records.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Field resolves a single labeled value by trying each selector in order and
// returning the first non-empty, whitespace-collapsed text. Absence is "".
func Field(root *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		text := collapse(root.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// Attr returns the named attribute of the first node matching any selector,
// or "" when no node or attribute exists.
func Attr(root *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := root.Find(sel).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

// Row is one extracted table row. Values is populated only when the table's
// header count matched the cell count for this row; Cells always carries the
// positional cell texts so callers can distinguish "unkeyed" from "absent".
type Row struct {
	Cells  []string
	Values map[string]string
}

// Get returns the first non-empty value among the given header keys.
// The same grid is rendered with varying header spellings across sections,
// so callers pass every spelling they accept.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v, ok := r.Values[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// IsNoData reports whether the row is a rendered "No Data" placeholder the
// source emits for empty sections.
func (r Row) IsNoData() bool {
	joined := strings.ToLower(strings.Join(r.Cells, " "))
	return strings.Contains(joined, "no data")
}

// Header detection conventions, most specific first. The styled header class
// is the grid widget's own convention; later entries cover plain tables.
var headerSelectors = []string{
	"tr.HeaderStyle th",
	"thead tr th",
	"tr:first-child th",
}

// Row detection conventions, matching the header cascade.
var rowSelectors = []string{
	"tr.RowStyle, tr.AltRowStyle",
	"tbody tr",
}

// Table extracts the rows of the first table matching selector. When every
// data row has exactly as many cells as detected headers, rows carry a
// header-keyed Values map; otherwise rows are positional only. A missing
// table yields nil.
func Table(root *goquery.Selection, selector string) []Row {
	table := root.Find(selector).First()
	if table.Length() == 0 {
		return nil
	}

	headers := detectHeaders(table)
	rowNodes := detectRows(table)

	var rows []Row
	rowNodes.Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		texts := make([]string, 0, cells.Length())
		any := false
		cells.Each(func(_ int, td *goquery.Selection) {
			text := collapse(td.Text())
			if text != "" {
				any = true
			}
			texts = append(texts, text)
		})
		if !any {
			return
		}
		row := Row{Cells: texts}
		if len(headers) > 0 && len(texts) == len(headers) {
			row.Values = make(map[string]string, len(headers))
			for i, h := range headers {
				row.Values[h] = texts[i]
			}
		}
		rows = append(rows, row)
	})
	return rows
}

// LabeledPairs walks two-cell rows of every table under root and returns a
// map of snake_case label keys to values. Used for sections that render
// attributes as label/value tables instead of identified elements.
func LabeledPairs(root *goquery.Selection) map[string]string {
	pairs := make(map[string]string)
	root.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := CleanLabel(cells.Eq(0).Text())
		value := CleanLabel(cells.Eq(1).Text())
		if label == "" || value == "" {
			return
		}
		if key := SnakeKey(label); key != "" {
			pairs[key] = value
		}
	})
	return pairs
}

func detectHeaders(table *goquery.Selection) []string {
	for _, sel := range headerSelectors {
		nodes := table.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		return headerTexts(nodes)
	}
	// Last resort: first row, th or td.
	first := table.Find("tr").First()
	if first.Length() == 0 {
		return nil
	}
	return headerTexts(first.Find("th, td"))
}

func headerTexts(nodes *goquery.Selection) []string {
	headers := make([]string, 0, nodes.Length())
	nodes.Each(func(_ int, n *goquery.Selection) {
		headers = append(headers, collapse(n.Text()))
	})
	return headers
}

func detectRows(table *goquery.Selection) *goquery.Selection {
	for _, sel := range rowSelectors {
		if nodes := table.Find(sel); nodes.Length() > 0 {
			return nodes
		}
	}
	// Generic table: every tr after the first.
	all := table.Find("tr")
	if all.Length() <= 1 {
		return all.Slice(0, 0)
	}
	return all.Slice(1, goquery.ToEnd)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
