// Package extraction pulls structured records out of fetched documents.
// It follows the same synthesize, validate, execute, normalize pipeline as
// the analysis engine, specialized to HTML: the generation service returns
// a declarative extraction rule which is interpreted against the parsed
// document. When synthesis or the rule fails in any way, a deterministic
// structure-scoring extractor takes over, so extraction always yields a
// record sequence.
package extraction

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	previewChars      = 600
	structureMaxItems = 8
)

// PageStructure is the document summary sent to the generation service
// instead of the raw page.
type PageStructure struct {
	Title    string      `json:"title"`
	PageType string      `json:"page_type"`
	Tables   []TableInfo `json:"tables"`
	Lists    []ListInfo  `json:"lists"`
	Preview  string      `json:"preview"`
}

// TableInfo summarizes one table: position, headers and size.
type TableInfo struct {
	Index   int      `json:"index"`
	Headers []string `json:"headers"`
	Rows    int      `json:"rows"`
}

// ListInfo summarizes one repeating list structure.
type ListInfo struct {
	Index int      `json:"index"`
	Items int      `json:"items"`
	First []string `json:"first_items"`
}

// AnalyzeStructure parses the document and reports its repeating
// structures, a short text preview and a coarse page classification.
func AnalyzeStructure(doc *goquery.Document) PageStructure {
	ps := PageStructure{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		info := TableInfo{Index: i, Rows: table.Find("tr").Length()}
		table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if len(info.Headers) < structureMaxItems {
				info.Headers = append(info.Headers, cleanText(cell.Text()))
			}
		})
		ps.Tables = append(ps.Tables, info)
	})

	doc.Find("ul, ol").Each(func(i int, list *goquery.Selection) {
		items := list.ChildrenFiltered("li")
		if items.Length() < 2 {
			return
		}
		info := ListInfo{Index: len(ps.Lists), Items: items.Length()}
		items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
			info.First = append(info.First, truncate(cleanText(item.Text()), 80))
			return len(info.First) < 3
		})
		ps.Lists = append(ps.Lists, info)
	})

	ps.Preview = truncate(cleanText(doc.Find("body").Text()), previewChars)
	ps.PageType = classify(ps)
	return ps
}

func classify(ps PageStructure) string {
	switch {
	case len(ps.Tables) > 0:
		return "tabular"
	case len(ps.Lists) >= 3:
		return "listing"
	case len(ps.Lists) > 0:
		return "mixed"
	default:
		return "article"
	}
}

// Describe renders the structure as prompt text.
func (ps PageStructure) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nPage type: %s\n", ps.Title, ps.PageType)
	for _, t := range ps.Tables {
		fmt.Fprintf(&b, "Table %d: %d rows, headers: %s\n", t.Index, t.Rows, strings.Join(t.Headers, " | "))
	}
	for _, l := range ps.Lists {
		fmt.Fprintf(&b, "List %d: %d items, e.g. %s\n", l.Index, l.Items, strings.Join(l.First, "; "))
	}
	fmt.Fprintf(&b, "Preview: %s\n", ps.Preview)
	return b.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
