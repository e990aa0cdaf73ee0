package extraction

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// applyRule interprets a validated rule against the parsed document and
// returns the extracted records.
func applyRule(doc *goquery.Document, rule *Rule) ([]map[string]any, error) {
	switch rule.Target.Kind {
	case TargetTable:
		return extractTable(doc, rule)
	case TargetList:
		return extractList(doc, rule)
	case TargetSelector:
		return extractSelector(doc, rule)
	default:
		return nil, fmt.Errorf("unknown target kind %q", rule.Target.Kind)
	}
}

func extractTable(doc *goquery.Document, rule *Rule) ([]map[string]any, error) {
	table := doc.Find("table").Eq(rule.Target.Index)
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table at index %d", rule.Target.Index)
	}

	rows := table.Find("tr")
	start := rule.SkipRows

	var headers []string
	if rule.HeaderRow {
		rows.Eq(start).Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, cleanText(cell.Text()))
		})
		start++
	}

	var records []map[string]any
	rows.Each(func(i int, row *goquery.Selection) {
		if i < start {
			return
		}
		cells := row.Find("td, th")
		if cells.Length() == 0 {
			return
		}
		rec := make(map[string]any)
		if len(rule.Fields) > 0 {
			for _, f := range rule.Fields {
				cell := cells.Eq(f.Column)
				if cell.Length() == 0 {
					continue
				}
				rec[f.Name] = fieldValue(cell, f)
			}
		} else {
			cells.Each(func(j int, cell *goquery.Selection) {
				name := fmt.Sprintf("col_%d", j)
				if j < len(headers) && headers[j] != "" {
					name = headers[j]
				}
				rec[name] = cleanText(cell.Text())
			})
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	})
	return records, nil
}

func extractList(doc *goquery.Document, rule *Rule) ([]map[string]any, error) {
	// Index counts only lists with repeating items, matching the numbering
	// reported by AnalyzeStructure.
	var target *goquery.Selection
	seen := 0
	doc.Find("ul, ol").EachWithBreak(func(_ int, list *goquery.Selection) bool {
		if list.ChildrenFiltered("li").Length() < 2 {
			return true
		}
		if seen == rule.Target.Index {
			target = list
			return false
		}
		seen++
		return true
	})
	if target == nil {
		return nil, fmt.Errorf("no list at index %d", rule.Target.Index)
	}

	var records []map[string]any
	target.ChildrenFiltered("li").Each(func(i int, item *goquery.Selection) {
		if i < rule.SkipRows {
			return
		}
		records = append(records, elementRecord(item, rule.Fields))
	})
	return records, nil
}

func extractSelector(doc *goquery.Document, rule *Rule) ([]map[string]any, error) {
	matches := doc.Find(rule.Target.Selector)
	if matches.Length() == 0 {
		return nil, fmt.Errorf("selector %q matched nothing", rule.Target.Selector)
	}
	var records []map[string]any
	matches.Each(func(i int, el *goquery.Selection) {
		if i < rule.SkipRows {
			return
		}
		records = append(records, elementRecord(el, rule.Fields))
	})
	return records, nil
}

// elementRecord builds one record from an element. Without fields the
// whole element text becomes a single "text" value.
func elementRecord(el *goquery.Selection, fields []Field) map[string]any {
	if len(fields) == 0 {
		return map[string]any{"text": cleanText(el.Text())}
	}
	rec := make(map[string]any, len(fields))
	for _, f := range fields {
		scope := el
		if f.Selector != "" {
			scope = el.Find(f.Selector)
		}
		if scope.Length() == 0 {
			continue
		}
		rec[f.Name] = fieldValue(scope.First(), f)
	}
	return rec
}

func fieldValue(el *goquery.Selection, f Field) string {
	if f.Attr != "" {
		val, _ := el.Attr(f.Attr)
		return val
	}
	return cleanText(el.Text())
}
