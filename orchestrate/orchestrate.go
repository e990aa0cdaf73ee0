// Package orchestrate owns the run loop: ask the generation service which
// single action to take, dispatch it, fold the result into the run
// context, repeat until formatting succeeds or the run fails.
package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/richinex/delphi/analysis"
	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/extraction"
	"github.com/richinex/delphi/fetch"
	"github.com/richinex/delphi/format"
	"github.com/richinex/delphi/internal/jsonx"
	"github.com/richinex/delphi/llm"
	"github.com/richinex/delphi/model"
)

var (
	// ErrInvalidDirective means the service returned an unparseable or
	// malformed next-action decision.
	ErrInvalidDirective = errors.New("orchestrate: invalid tool directive")
	// ErrInvalidParameter means a directive's parameter failed a tool
	// precondition; the run context is left untouched.
	ErrInvalidParameter = errors.New("orchestrate: invalid tool parameter")
	// ErrIterationLimit means the loop hit its configured safety bound
	// without the service ever choosing to format an answer.
	ErrIterationLimit = errors.New("orchestrate: iteration limit reached")
)

// DefaultMaxIterations bounds the decide/dispatch loop when no explicit
// limit is configured.
const DefaultMaxIterations = 10

// RunError carries the failure cause together with a snapshot of the run
// context at the moment of failure, for diagnosis.
type RunError struct {
	Err      error
	Snapshot model.RunContext
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

// Orchestrator drives one run at a time. Each run gets its own context;
// an Orchestrator holds no cross-run mutable state and may be shared.
type Orchestrator struct {
	client        *llm.Client
	fetcher       fetch.Fetcher
	extractor     *extraction.Engine
	analyzer      *analysis.Engine
	formatter     *format.Formatter
	logger        *slog.Logger
	maxIterations int
}

// Options configures an Orchestrator beyond its collaborators.
type Options struct {
	MaxIterations int
	Logger        *slog.Logger
}

func New(client *llm.Client, fetcher fetch.Fetcher, extractor *extraction.Engine, analyzer *analysis.Engine, formatter *format.Formatter, opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		client:        client,
		fetcher:       fetcher,
		extractor:     extractor,
		analyzer:      analyzer,
		formatter:     formatter,
		logger:        opts.Logger,
		maxIterations: opts.MaxIterations,
	}
}

// Run answers one question. files maps original upload filenames to stored
// references. On failure the returned error is a *RunError wrapping the
// cause and the context snapshot; there are no orchestrator-level retries.
func (o *Orchestrator) Run(ctx context.Context, question string, files map[string]artifact.Ref) (any, error) {
	rc := model.NewRunContext()

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		directive, err := o.decide(ctx, question, rc)
		if err != nil {
			return nil, o.fail(rc, err)
		}
		o.logger.Info("dispatching tool",
			"iteration", iteration,
			"tool", directive.ToolName.String(),
			"reasoning", directive.Reasoning)

		final, done, err := o.dispatch(ctx, question, rc, directive, files)
		if err != nil {
			return nil, o.fail(rc, err)
		}
		if done {
			return final, nil
		}
	}
	return nil, o.fail(rc, fmt.Errorf("%w after %d iterations", ErrIterationLimit, o.maxIterations))
}

func (o *Orchestrator) fail(rc *model.RunContext, err error) error {
	o.logger.Error("run failed", "error", err)
	return &RunError{Err: err, Snapshot: rc.Snapshot()}
}

// decide asks the service for the next action and parses it strictly. Any
// parse failure fails the iteration; there is no parse-retry loop.
func (o *Orchestrator) decide(ctx context.Context, question string, rc *model.RunContext) (*model.Directive, error) {
	raw, err := o.client.CompleteJSON(ctx, decideSystemPrompt, decidePrompt(question, rc))
	if err != nil {
		return nil, err
	}
	var directive model.Directive
	if err := jsonx.Decode(raw, &directive); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}
	return &directive, nil
}

// dispatch runs exactly one tool and mutates exactly the context field that
// tool owns. A true done return means format succeeded and the run is
// terminal.
func (o *Orchestrator) dispatch(ctx context.Context, question string, rc *model.RunContext, d *model.Directive, files map[string]artifact.Ref) (any, bool, error) {
	switch d.ToolName {
	case model.ToolFetch:
		target, err := validateURL(d.ToolParameter)
		if err != nil {
			return nil, false, err
		}
		content, err := o.fetcher.Fetch(ctx, target)
		if err != nil {
			return nil, false, err
		}
		result, err := o.extractor.Extract(ctx, content, d.Instructions)
		if err != nil {
			return nil, false, err
		}
		rc.CurrentData = recordsToAny(result.Data)
		return nil, false, nil

	case model.ToolAnalyze:
		data, err := resolveParameter(d.ToolParameter, rc)
		if err != nil {
			return nil, false, err
		}
		if data == nil {
			data = rc.CurrentData
		}
		result, err := o.analyzer.Analyze(ctx, question, d.Instructions, data, files)
		if err != nil {
			return nil, false, err
		}
		rc.AnalysisResults = result
		return nil, false, nil

	case model.ToolFormat:
		result := rc.AnalysisResults
		if result == nil {
			result = mappingFromData(rc.CurrentData)
		}
		final, err := o.formatter.Format(ctx, question, d.Instructions, result)
		if err != nil {
			return nil, false, err
		}
		out := stringify(final)
		rc.FinalOutput = &out
		return final, true, nil

	default:
		// Unreachable: Directive parsing rejects unknown tool names.
		return nil, false, fmt.Errorf("%w: tool %q", ErrInvalidDirective, d.ToolName)
	}
}

// validateURL enforces the fetch precondition: exactly one parameter that
// parses as an absolute http(s) URL.
func validateURL(param string) (string, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return "", fmt.Errorf("%w: fetch requires a URL", ErrInvalidParameter)
	}
	u, err := url.Parse(param)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not a valid URL", ErrInvalidParameter, param)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidParameter, u.Scheme)
	}
	return param, nil
}

// resolveParameter turns a directive parameter into a value: reference
// tokens resolve against the run context, anything else is a literal, an
// empty parameter resolves to nil.
func resolveParameter(param string, rc *model.RunContext) (any, error) {
	switch strings.TrimSpace(param) {
	case "":
		return nil, nil
	case "context.current_data":
		return rc.CurrentData, nil
	case "context.analysis_results":
		if rc.AnalysisResults == nil {
			return nil, fmt.Errorf("%w: no analysis results in context yet", ErrInvalidParameter)
		}
		return rc.AnalysisResults, nil
	default:
		return param, nil
	}
}

func recordsToAny(records []map[string]any) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	return out
}

// mappingFromData builds a result mapping when format is chosen before any
// analysis ran: list data is normalized, anything else becomes one key.
func mappingFromData(data any) *model.Mapping {
	switch v := data.(type) {
	case nil:
		return model.NewMapping()
	case []any:
		return model.FromList(v)
	case *model.Mapping:
		return v
	default:
		m := model.NewMapping()
		m.Set("data", v)
		return m
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

const decideSystemPrompt = `You are the controller of a data question answering pipeline. Each turn you pick exactly one tool to run next and answer with a single JSON object:

{
  "reasoning": "why this tool now",
  "instructions": "what the tool should do",
  "tool_name": "fetch" | "analyze" | "format",
  "tool_parameter": "..."
}

Tools:
- fetch: retrieve a web page and extract structured records from it. tool_parameter must be the full URL. The extracted records become the current data.
- analyze: run a data analysis over the current data or uploaded files. tool_parameter is "context.current_data", "context.analysis_results", or empty to use the current data. Put the concrete analysis request in instructions.
- format: produce the final answer from the accumulated results. Choose this as soon as the results can answer the question. Put any required output shape in instructions.

Pick exactly one tool per turn. Never answer with anything but the JSON object.`

func decidePrompt(question string, rc *model.RunContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nRun context:\n", question)
	summary := rc.DisplaySummary()
	for _, key := range []string{"current_data", "analysis_results", "final_output"} {
		fmt.Fprintf(&b, "- %s: %s\n", key, summary[key])
	}
	b.WriteString("\nChoose the next tool.")
	return b.String()
}
