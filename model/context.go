package model

import (
	"fmt"
)

// RunContext is the mutable state accumulated over one question-answering
// run. Exactly one field changes per orchestrator iteration; once FinalOutput
// is set the run is terminal and the context is never mutated again.
type RunContext struct {
	// CurrentData holds the last materialized dataset. Shape is opaque:
	// typically []map[string]any from extraction, but any decodable JSON
	// value is legal.
	CurrentData any

	// AnalysisResults holds the last canonical result mapping, or nil.
	AnalysisResults *Mapping

	// FinalOutput holds the terminal answer, or nil while the run is live.
	FinalOutput *string
}

// NewRunContext returns an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// Snapshot returns a diagnostic copy attached to run failures. The copy is
// shallow for CurrentData (treated as immutable once stored) and deep for
// the mapping.
func (c *RunContext) Snapshot() RunContext {
	snap := RunContext{CurrentData: c.CurrentData}
	if c.AnalysisResults != nil {
		snap.AnalysisResults = c.AnalysisResults.Clone()
	}
	if c.FinalOutput != nil {
		out := *c.FinalOutput
		snap.FinalOutput = &out
	}
	return snap
}

// Summary display bounds. Large values are summarized with counts rather
// than reproduced, keeping the control-plane prompt small.
const (
	summarySampleItems = 2
	summaryMaxChars    = 300
)

// DisplaySummary produces the bounded projection of the context sent to the
// generation service when deciding the next action.
func (c *RunContext) DisplaySummary() map[string]string {
	out := map[string]string{
		"current_data":     summarizeValue(c.CurrentData),
		"analysis_results": "",
		"final_output":     "",
	}
	if c.AnalysisResults != nil {
		if data, err := c.AnalysisResults.MarshalJSON(); err == nil {
			out["analysis_results"] = truncateWithNote(string(data))
		}
	}
	if c.FinalOutput != nil {
		out["final_output"] = truncateWithNote(*c.FinalOutput)
	}
	return out
}

func summarizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		n := summarySampleItems
		if n > len(val) {
			n = len(val)
		}
		sample := fmt.Sprintf("%v", val[:n])
		if len(sample) > summaryMaxChars {
			sample = sample[:summaryMaxChars] + "..."
		}
		if len(val) > n {
			return fmt.Sprintf("[%d items total] Sample: %s + %d more items", len(val), sample, len(val)-n)
		}
		return fmt.Sprintf("[%d items total] %s", len(val), sample)
	case []map[string]any:
		anyVals := make([]any, len(val))
		for i, item := range val {
			anyVals[i] = item
		}
		return summarizeValue(anyVals)
	case string:
		return truncateWithNote(val)
	default:
		return truncateWithNote(fmt.Sprintf("%v", val))
	}
}

func truncateWithNote(s string) string {
	if len(s) <= summaryMaxChars {
		return s
	}
	return s[:summaryMaxChars] + fmt.Sprintf("... (total: %d chars)", len(s))
}
