package extraction

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fallbackExtract is the rule-based extractor used when synthesis is
// unavailable or the synthesized rule fails. It scores every candidate
// repeating structure against the request keywords and extracts from the
// best one: tables first, then lists, then generic content blocks. It
// returns records plus a note of which candidate won, and never fails.
func fallbackExtract(doc *goquery.Document, request string) ([]map[string]any, string) {
	keywords := requestKeywords(request)

	bestScore := -1.0
	var best []map[string]any
	used := "none"

	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		rows := table.Find("tr").Length()
		if rows < 2 {
			return
		}
		score := 10 + float64(rows) + keywordScore(table.Text(), keywords)*5
		if score > bestScore {
			rule := &Rule{Target: Target{Kind: TargetTable, Index: i}, HeaderRow: true}
			if records, err := applyRule(doc, rule); err == nil && len(records) > 0 {
				bestScore = score
				best = records
				used = "table"
			}
		}
	})

	listIndex := 0
	doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		items := list.ChildrenFiltered("li").Length()
		if items < 2 {
			return
		}
		idx := listIndex
		listIndex++
		score := 5 + float64(items)*0.5 + keywordScore(list.Text(), keywords)*5
		if score > bestScore {
			rule := &Rule{Target: Target{Kind: TargetList, Index: idx}}
			if records, err := applyRule(doc, rule); err == nil && len(records) > 0 {
				bestScore = score
				best = records
				used = "list"
			}
		}
	})

	if best == nil {
		// Generic content blocks keep the component from ever coming back
		// empty-handed on article-shaped pages.
		doc.Find("article, section, p").Each(func(_ int, block *goquery.Selection) {
			text := cleanText(block.Text())
			if len(text) < 40 {
				return
			}
			best = append(best, map[string]any{"text": truncate(text, 500)})
		})
		if best != nil {
			used = "content"
		}
	}
	return best, used
}

func requestKeywords(request string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(request)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) > 3 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
