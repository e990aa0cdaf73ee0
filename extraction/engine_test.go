package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/richinex/delphi/llm"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Chat(_ context.Context, _ []llm.ChatMessage) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.response}, nil
}

func (f *fakeProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.Response, error) {
	return f.Chat(ctx, messages)
}

func TestExtractWithSynthesizedRule(t *testing.T) {
	rule := `{"target": {"kind": "table", "index": 0}, "header_row": true}`
	engine := NewEngine(llm.NewClient(&fakeProvider{response: rule}), nil)

	result, err := engine.Extract(context.Background(), productPage, "list the products")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Data) != 3 {
		t.Fatalf("expected 3 records, got %d", len(result.Data))
	}
	if result.Debug["method"] != "synthesized_table" {
		t.Errorf("unexpected method: %v", result.Debug["method"])
	}
}

func TestExtractFallsBackOnServiceFailure(t *testing.T) {
	engine := NewEngine(llm.NewClient(&fakeProvider{err: errors.New("service down")}), nil)

	result, err := engine.Extract(context.Background(), productPage, "list the products")
	if err != nil {
		t.Fatalf("Extract must not propagate synthesis failure: %v", err)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected fallback records")
	}
	if _, ok := result.Debug["synthesis_error"]; !ok {
		t.Error("expected synthesis_error recorded in debug")
	}
	method, _ := result.Debug["method"].(string)
	if !strings.HasPrefix(method, "fallback_") {
		t.Errorf("expected fallback method, got %q", method)
	}
}

func TestExtractFallsBackOnBrokenRule(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose instead of rule", "I would suggest reading the table manually."},
		{"unknown target kind", `{"target": {"kind": "regex", "selector": "x"}}`},
		{"rule matching nothing", `{"target": {"kind": "selector", "selector": "div.absent"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(llm.NewClient(&fakeProvider{response: tt.response}), nil)
			result, err := engine.Extract(context.Background(), productPage, "products")
			if err != nil {
				t.Fatalf("Extract must not fail: %v", err)
			}
			if len(result.Data) == 0 {
				t.Error("expected fallback records")
			}
		})
	}
}

func TestExtractAlwaysReturnsData(t *testing.T) {
	// Even a structureless page yields an empty (not nil) data sequence.
	engine := NewEngine(llm.NewClient(&fakeProvider{response: "garbage"}), nil)
	result, err := engine.Extract(context.Background(), "<html><body></body></html>", "anything")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Data == nil {
		t.Fatal("expected non-nil data sequence")
	}
}

func TestExtractCapsRecordCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><table><tr><th>n</th></tr>")
	for i := 0; i < maxRecords+50; i++ {
		fmt.Fprintf(&b, "<tr><td>%d</td></tr>", i)
	}
	b.WriteString("</table></body></html>")

	rule := `{"target": {"kind": "table", "index": 0}, "header_row": true}`
	engine := NewEngine(llm.NewClient(&fakeProvider{response: rule}), nil)

	result, err := engine.Extract(context.Background(), b.String(), "numbers")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Data) != maxRecords {
		t.Errorf("expected cap at %d, got %d", maxRecords, len(result.Data))
	}
	if result.Debug["truncated"] != true {
		t.Error("expected truncation recorded in debug")
	}
	if result.Debug["total_found"] != maxRecords+50 {
		t.Errorf("expected total_found=%d, got %v", maxRecords+50, result.Debug["total_found"])
	}
}

func TestFallbackPrefersRelevantStructure(t *testing.T) {
	page := `<html><body>
	<table><tr><th>price</th></tr><tr><td>10</td></tr><tr><td>20</td></tr></table>
	<ul><li>unrelated footer link</li><li>another link</li></ul>
	</body></html>`
	doc := parseDoc(t, page)

	records, used := fallbackExtract(doc, "what are the prices")
	if used != "table" {
		t.Errorf("expected table chosen, got %q", used)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestFallbackContentBlocks(t *testing.T) {
	doc := parseDoc(t, articlePage)
	records, used := fallbackExtract(doc, "summarize the essay")
	if used != "content" {
		t.Errorf("expected content blocks, got %q", used)
	}
	if len(records) == 0 {
		t.Error("expected paragraph records")
	}
}
