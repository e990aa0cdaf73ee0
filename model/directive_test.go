package model

import (
	"encoding/json"
	"testing"
)

func TestDirectiveParse(t *testing.T) {
	raw := `{"reasoning": "need the page", "instructions": "get product rows", "tool_name": "fetch", "tool_parameter": "https://example.com"}`
	var d Directive
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ToolName != ToolFetch {
		t.Errorf("expected fetch, got %v", d.ToolName)
	}
	if d.ToolParameter != "https://example.com" {
		t.Errorf("unexpected parameter: %q", d.ToolParameter)
	}
}

func TestDirectiveRejectsUnknownTool(t *testing.T) {
	raw := `{"reasoning": "", "instructions": "", "tool_name": "delete_everything", "tool_parameter": ""}`
	var d Directive
	if err := json.Unmarshal([]byte(raw), &d); err == nil {
		t.Fatal("expected error for unknown tool, got nil")
	}
}

func TestToolRoundTrip(t *testing.T) {
	for _, tool := range []Tool{ToolFetch, ToolAnalyze, ToolFormat} {
		parsed, err := ParseTool(tool.String())
		if err != nil {
			t.Fatalf("parse %q: %v", tool.String(), err)
		}
		if parsed != tool {
			t.Errorf("expected %v, got %v", tool, parsed)
		}
	}
	if _, err := ParseTool("scrape"); err == nil {
		t.Error("expected error for unknown name")
	}
}
