package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/richinex/delphi/internal/jsonx"
	"github.com/richinex/delphi/llm"
)

// maxRecords caps the extracted record count to bound downstream payloads.
// Truncation is recorded in the debug mapping, never silent.
const maxRecords = 200

// Result is what extraction always returns: a record sequence plus a debug
// mapping describing how it was produced.
type Result struct {
	Data  []map[string]any `json:"data"`
	Debug map[string]any   `json:"debug"`
}

// Engine extracts structured records from fetched documents. Synthesis
// failures degrade to the deterministic fallback instead of surfacing, so
// Extract returns an error only when the document itself cannot be parsed.
type Engine struct {
	client *llm.Client
	logger *slog.Logger
}

func NewEngine(client *llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger}
}

// Extract parses the document, tries a synthesized extraction rule and
// falls back to structure scoring when anything in the synthesis path goes
// wrong.
func (e *Engine) Extract(ctx context.Context, content, request string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("extraction: parse document: %w", err)
	}
	structure := AnalyzeStructure(doc)
	debug := map[string]any{
		"page_type": structure.PageType,
		"tables":    len(structure.Tables),
		"lists":     len(structure.Lists),
	}

	records, method, synthErr := e.trySynthesized(ctx, doc, structure, request)
	if synthErr != nil {
		e.logger.Warn("synthesized extraction failed, using fallback", "error", synthErr)
		debug["synthesis_error"] = synthErr.Error()
		var source string
		records, source = fallbackExtract(doc, request)
		method = "fallback_" + source
	}
	debug["method"] = method

	if len(records) > maxRecords {
		debug["truncated"] = true
		debug["total_found"] = len(records)
		records = records[:maxRecords]
	}
	if records == nil {
		records = []map[string]any{}
	}
	debug["record_count"] = len(records)
	return &Result{Data: records, Debug: debug}, nil
}

func (e *Engine) trySynthesized(ctx context.Context, doc *goquery.Document, structure PageStructure, request string) ([]map[string]any, string, error) {
	raw, err := e.client.CompleteJSON(ctx, ruleSystemPrompt, rulePrompt(structure, request))
	if err != nil {
		return nil, "", fmt.Errorf("rule synthesis: %w", err)
	}
	var rule Rule
	if err := jsonx.Decode(raw, &rule); err != nil {
		return nil, "", fmt.Errorf("parse rule: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return nil, "", fmt.Errorf("validate rule: %w", err)
	}
	records, err := applyRule(doc, &rule)
	if err != nil {
		return nil, "", fmt.Errorf("apply rule: %w", err)
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("rule matched no records")
	}
	return records, "synthesized_" + rule.Target.Kind, nil
}

const ruleSystemPrompt = `You are a web extraction planner. You answer with a single JSON object describing how to extract records from a page. Never write prose or code.

A rule has this shape:
{
  "target": {"kind": "table", "index": <n>}
          | {"kind": "list", "index": <n>}
          | {"kind": "selector", "selector": "<css selector for repeating elements>"},
  "fields": [
    {"name": "<key>", "column": <cell index>},
    {"name": "<key>", "selector": "<css selector within the element>", "attr": "<attribute, omit for text>"}
  ],
  "header_row": true,
  "skip_rows": <n>
}

Rules:
- table and list indexes refer to the numbered structures in the page summary.
- for tables, either give fields with column positions or set header_row to name columns from the first row.
- omit fields entirely to take each element's full text.`

func rulePrompt(structure PageStructure, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraction request: %s\n\nPage summary:\n%s", request, structure.Describe())
	b.WriteString("\nRespond with the extraction rule as a single JSON object.")
	return b.String()
}
