// Package analysis turns a natural-language analysis request into an
// executable operation plan and runs it against the current dataset.
//
// The generation service does not return arbitrary code. It returns a
// declarative plan: a data source, an ordered list of transforms and a list
// of named outputs. The plan is statically validated and then interpreted
// against an explicit capability set (tabular transforms, SQL over uploaded
// files, chart rendering, the artifact store). Nothing outside that set is
// reachable from a plan.
package analysis

import (
	"fmt"
	"strings"
)

// Source kinds.
const (
	SourceData = "data"
	SourceFile = "file"
	SourceSQL  = "sql"
)

// Transform operations.
const (
	OpFilter       = "filter"
	OpCleanNumeric = "clean_numeric"
	OpSort         = "sort"
	OpLimit        = "limit"
	OpSelect       = "select"
)

// Output operations.
const (
	OutCount       = "count"
	OutSum         = "sum"
	OutMean        = "mean"
	OutMedian      = "median"
	OutMin         = "min"
	OutMax         = "max"
	OutCorrelation = "correlation"
	OutValue       = "value"
	OutList        = "list"
	OutRows        = "rows"
	OutExport      = "export"
	OutPlot        = "plot"
)

// Comparison operators for filter transforms.
var validComparisons = map[string]bool{
	"eq": true, "ne": true, "gt": true, "ge": true,
	"lt": true, "le": true, "contains": true,
}

// Plan is a complete declarative analysis: where the records come from,
// how they are transformed, and which named values the run produces.
type Plan struct {
	Source     Source      `json:"source"`
	Transforms []Transform `json:"transforms,omitempty"`
	Outputs    []Output    `json:"outputs"`
}

// Source selects the record set a plan operates on.
type Source struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`  // file source: original upload filename
	Query string `json:"query,omitempty"` // sql source: SELECT statement
}

// Transform is one step applied to the record set, in order.
type Transform struct {
	Op     string   `json:"op"`
	Field  string   `json:"field,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Cmp    string   `json:"cmp,omitempty"`
	Value  any      `json:"value,omitempty"`
	Desc   bool     `json:"desc,omitempty"`
	N      int      `json:"n,omitempty"`
}

// Output is one named value the plan produces for the result mapping.
type Output struct {
	Name   string    `json:"name"`
	Op     string    `json:"op"`
	Field  string    `json:"field,omitempty"`
	Field2 string    `json:"field2,omitempty"`
	Plot   *PlotSpec `json:"plot,omitempty"`
}

// PlotSpec describes a chart to render as a PNG artifact.
type PlotSpec struct {
	Kind  string `json:"kind"` // bar, line, scatter, histogram
	X     string `json:"x,omitempty"`
	Y     string `json:"y"`
	Title string `json:"title,omitempty"`
}

var validPlotKinds = map[string]bool{
	"bar": true, "line": true, "scatter": true, "histogram": true,
}

// Validate performs the static checks done before any execution: known
// source kind, known operations, required fields present. A plan that
// passes still can fail at run time (missing column, bad query), but an
// obviously broken one is rejected without paying for an execution.
func (p *Plan) Validate() error {
	switch p.Source.Kind {
	case SourceData:
	case SourceFile:
		if p.Source.Name == "" {
			return fmt.Errorf("file source requires a name")
		}
	case SourceSQL:
		q := strings.TrimSpace(strings.ToUpper(p.Source.Query))
		if q == "" {
			return fmt.Errorf("sql source requires a query")
		}
		if !strings.HasPrefix(q, "SELECT") && !strings.HasPrefix(q, "WITH") {
			return fmt.Errorf("sql source query must be a SELECT")
		}
	default:
		return fmt.Errorf("unknown source kind %q", p.Source.Kind)
	}

	for i, t := range p.Transforms {
		if err := t.validate(); err != nil {
			return fmt.Errorf("transform %d: %w", i, err)
		}
	}

	// A plan with no outputs is syntactically valid; the missing result is
	// a distinct run failure, never a silent empty success.
	seen := make(map[string]bool, len(p.Outputs))
	for i, o := range p.Outputs {
		if err := o.validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if seen[o.Name] {
			return fmt.Errorf("output %d: duplicate name %q", i, o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

func (t Transform) validate() error {
	switch t.Op {
	case OpFilter:
		if t.Field == "" {
			return fmt.Errorf("filter requires a field")
		}
		if !validComparisons[t.Cmp] {
			return fmt.Errorf("filter has unknown comparison %q", t.Cmp)
		}
	case OpCleanNumeric:
		if len(t.Fields) == 0 && t.Field == "" {
			return fmt.Errorf("clean_numeric requires fields")
		}
	case OpSort:
		if t.Field == "" {
			return fmt.Errorf("sort requires a field")
		}
	case OpLimit:
		if t.N <= 0 {
			return fmt.Errorf("limit requires a positive n")
		}
	case OpSelect:
		if len(t.Fields) == 0 {
			return fmt.Errorf("select requires fields")
		}
	default:
		return fmt.Errorf("unknown transform %q", t.Op)
	}
	return nil
}

func (o Output) validate() error {
	if o.Name == "" {
		return fmt.Errorf("output requires a name")
	}
	switch o.Op {
	case OutCount, OutRows, OutExport:
	case OutSum, OutMean, OutMedian, OutMin, OutMax, OutValue, OutList:
		if o.Field == "" {
			return fmt.Errorf("%s requires a field", o.Op)
		}
	case OutCorrelation:
		if o.Field == "" || o.Field2 == "" {
			return fmt.Errorf("correlation requires field and field2")
		}
	case OutPlot:
		if o.Plot == nil {
			return fmt.Errorf("plot output requires a plot spec")
		}
		if !validPlotKinds[o.Plot.Kind] {
			return fmt.Errorf("unknown plot kind %q", o.Plot.Kind)
		}
		if o.Plot.Y == "" {
			return fmt.Errorf("plot requires a y field")
		}
	default:
		return fmt.Errorf("unknown output %q", o.Op)
	}
	return nil
}
