package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/internal/jsonx"
	"github.com/richinex/delphi/llm"
	"github.com/richinex/delphi/model"
)

var (
	// ErrSynthesisFailed means the generation service produced no usable plan.
	ErrSynthesisFailed = errors.New("analysis: plan synthesis failed")
	// ErrInvalidPlan means the returned plan failed static validation.
	ErrInvalidPlan = errors.New("analysis: invalid plan")
	// ErrExecution means a validated plan failed while running.
	ErrExecution = errors.New("analysis: execution failed")
	// ErrNoResult means execution finished without producing any output.
	ErrNoResult = errors.New("analysis: no result produced")
)

// Engine answers one analysis request: it asks the generation service for
// an operation plan, validates it, interprets it against the current
// dataset and returns the ordered result mapping.
type Engine struct {
	client *llm.Client
	store  *artifact.Store
	logger *slog.Logger
}

func NewEngine(client *llm.Client, store *artifact.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, store: store, logger: logger}
}

// Analyze runs the full synthesis, validation and execution pipeline.
// files maps original upload filenames to their stored references.
func (e *Engine) Analyze(ctx context.Context, question, instructions string, data any, files map[string]artifact.Ref) (*model.Mapping, error) {
	description, sample := DescribeData(data)
	e.logger.Debug("synthesizing analysis plan", "data", description)

	raw, err := e.client.CompleteJSON(ctx, planSystemPrompt, userPrompt(question, instructions, description, sample, files))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	var plan Plan
	if err := jsonx.Decode(raw, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	e.logger.Debug("executing plan", "source", plan.Source.Kind,
		"transforms", len(plan.Transforms), "outputs", len(plan.Outputs))

	exec := &execution{data: data, files: files, store: e.store}
	result, err := exec.run(&plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	if result.Len() == 0 {
		return nil, ErrNoResult
	}
	e.logger.Debug("analysis complete", "result", marshalResult(result))
	return result, nil
}

const planSystemPrompt = `You are a data analysis planner. You answer with a single JSON object describing an analysis plan. Never write prose or code.

A plan has this shape:
{
  "source": {"kind": "data"}
          | {"kind": "file", "name": "<uploaded filename>"}
          | {"kind": "sql", "query": "SELECT ..."},
  "transforms": [
    {"op": "filter", "field": "<f>", "cmp": "eq|ne|gt|ge|lt|le|contains", "value": <v>},
    {"op": "clean_numeric", "fields": ["<f>", ...]},
    {"op": "sort", "field": "<f>", "desc": true},
    {"op": "limit", "n": <int>},
    {"op": "select", "fields": ["<f>", ...]}
  ],
  "outputs": [
    {"name": "<result key>", "op": "count"},
    {"name": "...", "op": "sum|mean|median|min|max|value|list", "field": "<f>"},
    {"name": "...", "op": "correlation", "field": "<f>", "field2": "<g>"},
    {"name": "...", "op": "rows"},
    {"name": "...", "op": "export"},
    {"name": "...", "op": "plot", "plot": {"kind": "bar|line|scatter|histogram", "x": "<f>", "y": "<g>", "title": "..."}}
  ]
}

Rules:
- "data" is the current in-memory dataset. SQL queries see it as table "data"; each uploaded file is a table named after its filename stem.
- transforms run in order; outputs are computed from the transformed records.
- give every output a short descriptive snake_case name; those names become the result keys.
- numeric fields that arrive as strings (currency, units, separators) must be passed through clean_numeric before aggregation.
- "export" saves the transformed records as a CSV file and yields its stored filename.
- charts are produced only through a plot output. Never try to embed image data in any other way.`

func userPrompt(question, instructions, description, sample string, files map[string]artifact.Ref) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	if instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", instructions)
	}
	fmt.Fprintf(&b, "\nInput data is %s.\n", description)
	if sample != "" {
		fmt.Fprintf(&b, "Sample:\n%s\n", sample)
	}
	if len(files) > 0 {
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "\nUploaded files available as sources: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("\nRespond with the analysis plan as a single JSON object.")
	return b.String()
}

// marshalResult is a debugging aid used by logs.
func marshalResult(m *model.Mapping) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
