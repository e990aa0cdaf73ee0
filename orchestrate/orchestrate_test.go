package orchestrate

import (
	"context"
	"errors"
	"testing"

	"github.com/richinex/delphi/analysis"
	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/extraction"
	"github.com/richinex/delphi/format"
	"github.com/richinex/delphi/llm"
	"github.com/richinex/delphi/model"
)

// scriptedProvider replays responses in order; extra calls repeat the last
// one.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) Name() string  { return "fake" }
func (s *scriptedProvider) Model() string { return "fake-model" }

func (s *scriptedProvider) Chat(_ context.Context, _ []llm.ChatMessage) (llm.Response, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return llm.Response{Content: s.responses[idx]}, nil
}

func (s *scriptedProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.Response, error) {
	return s.Chat(ctx, messages)
}

// cyclingProvider alternates between a directive and a tool response
// forever, so the loop never terminates on its own.
type cyclingProvider struct {
	directive string
	tool      string
	calls     int
}

func (c *cyclingProvider) Name() string  { return "fake" }
func (c *cyclingProvider) Model() string { return "fake-model" }

func (c *cyclingProvider) Chat(_ context.Context, _ []llm.ChatMessage) (llm.Response, error) {
	c.calls++
	if c.calls%2 == 1 {
		return llm.Response{Content: c.directive}, nil
	}
	return llm.Response{Content: c.tool}, nil
}

func (c *cyclingProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.Response, error) {
	return c.Chat(ctx, messages)
}

type staticFetcher struct {
	content string
	fetched []string
}

func (f *staticFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	return f.content, nil
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, fetcher *staticFetcher, maxIter int) *Orchestrator {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := llm.NewClient(provider)
	if fetcher == nil {
		fetcher = &staticFetcher{}
	}
	return New(
		client,
		fetcher,
		extraction.NewEngine(client, nil),
		analysis.NewEngine(client, store, nil),
		format.NewFormatter(client, store, nil),
		Options{MaxIterations: maxIter},
	)
}

func TestRunFetchAnalyzeFormat(t *testing.T) {
	fetcher := &staticFetcher{content: `<html><body><table>
		<tr><th>v</th></tr><tr><td>5</td></tr><tr><td>15</td></tr>
	</table></body></html>`}

	provider := &scriptedProvider{responses: []string{
		// decide: fetch the page
		`{"reasoning": "need the data", "instructions": "extract the value rows", "tool_name": "fetch", "tool_parameter": "https://example.com/items"}`,
		// extraction rule
		`{"target": {"kind": "table", "index": 0}, "header_row": true}`,
		// decide: analyze the extracted records
		`{"reasoning": "count values over 10", "instructions": "count items with v over 10", "tool_name": "analyze", "tool_parameter": "context.current_data"}`,
		// analysis plan
		`{"source": {"kind": "data"}, "transforms": [{"op": "filter", "field": "v", "cmp": "gt", "value": 10}], "outputs": [{"name": "count_over_10", "op": "count"}]}`,
		// decide: format
		`{"reasoning": "results ready", "instructions": "answer as a JSON array of strings", "tool_name": "format", "tool_parameter": ""}`,
		// final answer
		`["1"]`,
	}}

	o := newTestOrchestrator(t, provider, fetcher, 0)
	result, err := o.Run(context.Background(), "count items", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	arr, ok := result.([]any)
	if !ok || len(arr) != 1 || arr[0] != "1" {
		t.Errorf("expected [\"1\"], got %v", result)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "https://example.com/items" {
		t.Errorf("unexpected fetches: %v", fetcher.fetched)
	}
}

func TestRunInvalidURLLeavesContextUnchanged(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"reasoning": "", "instructions": "", "tool_name": "fetch", "tool_parameter": "not-a-url"}`,
	}}
	o := newTestOrchestrator(t, provider, nil, 0)

	_, err := o.Run(context.Background(), "count items", nil)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatal("expected a RunError with context snapshot")
	}
	if runErr.Snapshot.CurrentData != nil || runErr.Snapshot.AnalysisResults != nil {
		t.Error("run context mutated despite precondition failure")
	}
}

func TestRunRejectsNonHTTPScheme(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"reasoning": "", "instructions": "", "tool_name": "fetch", "tool_parameter": "file:///etc/passwd"}`,
	}}
	o := newTestOrchestrator(t, provider, nil, 0)

	_, err := o.Run(context.Background(), "read the file", nil)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRunFailsOnMalformedDirective(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool_name": "scrape", "tool_parameter": "https://example.com"}`,
	}}
	o := newTestOrchestrator(t, provider, nil, 0)

	_, err := o.Run(context.Background(), "anything", nil)
	if !errors.Is(err, ErrInvalidDirective) {
		t.Errorf("expected ErrInvalidDirective, got %v", err)
	}
}

func TestRunAnalysisFailureEndsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"reasoning": "", "instructions": "count", "tool_name": "analyze", "tool_parameter": ""}`,
		// Plan references a file that was never uploaded.
		`{"source": {"kind": "file", "name": "missing.csv"}, "outputs": [{"name": "n", "op": "count"}]}`,
	}}
	o := newTestOrchestrator(t, provider, nil, 0)

	_, err := o.Run(context.Background(), "count rows", nil)
	if !errors.Is(err, analysis.ErrExecution) {
		t.Errorf("expected component failure to surface, got %v", err)
	}
}

func TestRunIterationBound(t *testing.T) {
	provider := &cyclingProvider{
		directive: `{"reasoning": "more analysis", "instructions": "again", "tool_name": "analyze", "tool_parameter": ""}`,
		tool:      `{"source": {"kind": "sql", "query": "SELECT 1 AS one"}, "outputs": [{"name": "one", "op": "value", "field": "one"}]}`,
	}
	o := newTestOrchestrator(t, provider, nil, 3)

	_, err := o.Run(context.Background(), "never finishes", nil)
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	// Three decide calls plus three plan calls, then the loop stops.
	if provider.calls != 6 {
		t.Errorf("expected 6 service calls, got %d", provider.calls)
	}
}

func TestRunFormatWithoutAnalysisNormalizesListData(t *testing.T) {
	fetcher := &staticFetcher{content: `<html><body><ul>
		<li>alpha</li><li>beta</li>
	</ul></body></html>`}
	provider := &scriptedProvider{responses: []string{
		`{"reasoning": "", "instructions": "grab the items", "tool_name": "fetch", "tool_parameter": "https://example.com"}`,
		`{"target": {"kind": "list", "index": 0}}`,
		`{"reasoning": "", "instructions": "", "tool_name": "format", "tool_parameter": ""}`,
		`the items are alpha and beta`,
	}}
	o := newTestOrchestrator(t, provider, fetcher, 0)

	result, err := o.Run(context.Background(), "list the items", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != "the items are alpha and beta" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestResolveParameter(t *testing.T) {
	rc := model.NewRunContext()
	rc.CurrentData = []any{map[string]any{"v": 1}}

	got, err := resolveParameter("context.current_data", rc)
	if err != nil {
		t.Fatalf("resolveParameter: %v", err)
	}
	if len(got.([]any)) != 1 {
		t.Errorf("unexpected resolution: %v", got)
	}

	if _, err := resolveParameter("context.analysis_results", rc); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for absent results, got %v", err)
	}

	lit, err := resolveParameter("https://example.com", rc)
	if err != nil || lit != "https://example.com" {
		t.Errorf("expected literal passthrough, got %v (%v)", lit, err)
	}

	empty, err := resolveParameter("  ", rc)
	if err != nil || empty != nil {
		t.Errorf("expected nil for empty parameter, got %v (%v)", empty, err)
	}
}
