package extraction

import "fmt"

// Target kinds an extraction rule may address.
const (
	TargetTable    = "table"
	TargetList     = "list"
	TargetSelector = "selector"
)

// Rule is a declarative extraction: which repeating structure to read and
// how to turn each repetition into a record.
type Rule struct {
	Target    Target  `json:"target"`
	Fields    []Field `json:"fields,omitempty"`
	HeaderRow bool    `json:"header_row,omitempty"`
	SkipRows  int     `json:"skip_rows,omitempty"`
}

// Target addresses one structure in the document, either by index into the
// detected tables/lists or by a CSS selector matching repeated elements.
type Target struct {
	Kind     string `json:"kind"`
	Index    int    `json:"index,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// Field names one value extracted per repetition. For tables, Column picks
// a cell by position; otherwise Selector narrows within the element and
// Attr picks an attribute instead of the text.
type Field struct {
	Name     string `json:"name"`
	Column   int    `json:"column,omitempty"`
	Selector string `json:"selector,omitempty"`
	Attr     string `json:"attr,omitempty"`
}

// Validate is the cheap static check applied before execution: recognized
// target, addressable selector, well-formed fields.
func (r *Rule) Validate() error {
	switch r.Target.Kind {
	case TargetTable, TargetList:
		if r.Target.Index < 0 {
			return fmt.Errorf("negative target index")
		}
	case TargetSelector:
		if r.Target.Selector == "" {
			return fmt.Errorf("selector target requires a selector")
		}
	default:
		return fmt.Errorf("unknown target kind %q", r.Target.Kind)
	}
	if r.SkipRows < 0 {
		return fmt.Errorf("negative skip_rows")
	}
	for i, f := range r.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if f.Column < 0 {
			return fmt.Errorf("field %q has a negative column", f.Name)
		}
	}
	if r.Target.Kind == TargetTable && len(r.Fields) == 0 && !r.HeaderRow {
		return fmt.Errorf("table rule needs fields or header_row")
	}
	return nil
}
