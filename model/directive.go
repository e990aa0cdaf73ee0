package model

import (
	"encoding/json"
	"fmt"
)

// Tool identifies one of the orchestrator's capabilities. It is a closed set:
// unmarshalling rejects unknown names, so an unknown tool can never reach the
// dispatch switch.
type Tool int

const (
	// ToolFetch fetches a document and extracts structured records from it.
	ToolFetch Tool = iota
	// ToolAnalyze runs a synthesized analysis plan over the current data.
	ToolAnalyze
	// ToolFormat produces the terminal answer from accumulated results.
	ToolFormat
)

var toolNames = map[Tool]string{
	ToolFetch:   "fetch",
	ToolAnalyze: "analyze",
	ToolFormat:  "format",
}

// String returns the wire name of the tool.
func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

// ParseTool maps a wire name to a Tool.
func ParseTool(name string) (Tool, error) {
	for t, n := range toolNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tool: %q", name)
}

// MarshalJSON writes the tool's wire name.
func (t Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses a wire name, failing on anything outside the set.
func (t *Tool) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseTool(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Directive is the next-action decision produced by the generation service
// each orchestrator iteration.
type Directive struct {
	Reasoning     string `json:"reasoning"`
	Instructions  string `json:"instructions"`
	ToolName      Tool   `json:"tool_name"`
	ToolParameter string `json:"tool_parameter"`
}
