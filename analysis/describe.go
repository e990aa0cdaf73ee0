package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/richinex/delphi/model"
)

const (
	describeSampleRows = 3
	describeMaxChars   = 1200
)

// DescribeData inspects a dataset's shape heuristically and returns a short
// structural description plus a small literal sample. The description, not
// the dataset, is what goes into the synthesis prompt.
func DescribeData(data any) (description, sample string) {
	switch v := data.(type) {
	case nil:
		return "no input data", ""
	case []any:
		return describeSequence(v)
	case []map[string]any:
		seq := make([]any, len(v))
		for i, m := range v {
			seq[i] = m
		}
		return describeSequence(seq)
	case map[string]any:
		keys := sortedKeys(v)
		desc := fmt.Sprintf("a single mapping with %d keys: %s", len(keys), strings.Join(keys, ", "))
		return desc, boundedJSON(v)
	case *model.Mapping:
		keys := v.Keys()
		desc := fmt.Sprintf("a single mapping with %d keys: %s", len(keys), strings.Join(keys, ", "))
		return desc, boundedJSON(v)
	case string:
		desc := fmt.Sprintf("text content, %d characters", len(v))
		if len(v) > describeMaxChars {
			return desc, v[:describeMaxChars] + "..."
		}
		return desc, v
	default:
		return fmt.Sprintf("opaque value of type %T", data), boundedJSON(data)
	}
}

func describeSequence(items []any) (string, string) {
	if len(items) == 0 {
		return "an empty sequence", "[]"
	}
	if first, ok := items[0].(map[string]any); ok {
		keys := sortedKeys(first)
		desc := fmt.Sprintf("a sequence of %d records with fields: %s", len(items), strings.Join(keys, ", "))
		n := describeSampleRows
		if n > len(items) {
			n = len(items)
		}
		return desc, boundedJSON(items[:n])
	}
	desc := fmt.Sprintf("a sequence of %d values (first is %T)", len(items), items[0])
	n := describeSampleRows
	if n > len(items) {
		n = len(items)
	}
	return desc, boundedJSON(items[:n])
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boundedJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(b) > describeMaxChars {
		return string(b[:describeMaxChars]) + "..."
	}
	return string(b)
}
