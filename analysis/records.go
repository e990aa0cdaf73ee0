package analysis

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/richinex/delphi/model"
)

// toRecords coerces an opaque dataset into a flat record sequence. A single
// mapping becomes one record; a sequence of scalars is wrapped with a
// "value" field so transforms have a field to address.
func toRecords(data any) ([]map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("no input data available")
	case []map[string]any:
		return v, nil
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, m)
				continue
			}
			records = append(records, map[string]any{"value": item})
		}
		return records, nil
	case map[string]any:
		return []map[string]any{v}, nil
	case *model.Mapping:
		// A normalized list result carries its original sequence; recover
		// it rather than treating the result_N keys as one wide record.
		if raw, ok := v.Get(model.KeyListData); ok {
			if items, ok := raw.([]any); ok {
				return toRecords(items)
			}
		}
		rec := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			rec[k], _ = v.Get(k)
		}
		return []map[string]any{rec}, nil
	default:
		return nil, fmt.Errorf("cannot treat %T as a record set", data)
	}
}

// parseFileRecords decodes an uploaded file into records based on its
// original filename.
func parseFileRecords(name string, data []byte) ([]map[string]any, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".csv"):
		return parseCSVRecords(data)
	case strings.HasSuffix(strings.ToLower(name), ".json"):
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return toRecords(normalizeValue(decoded))
	default:
		return nil, fmt.Errorf("unsupported file type for %s (want .csv or .json)", name)
	}
}

func parseCSVRecords(data []byte) ([]map[string]any, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) < 1 {
		return nil, nil
	}
	header := rows[0]
	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			rec[col] = coerceScalar(row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// coerceScalar turns a CSV cell into a typed value where possible.
func coerceScalar(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// normalizeValue replaces json.Number values with int64 or float64
// recursively, so the interpreter works with plain numeric types.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeValue(item)
		}
		return val
	default:
		return v
	}
}

// recordsToCSV writes records as CSV with a sorted header built from the
// union of fields.
func recordsToCSV(records []map[string]any) ([]byte, error) {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			if v, ok := rec[col]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			} else {
				row[i] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

var numericJunk = regexp.MustCompile(`[^0-9eE+.\-]`)

// asFloat extracts a numeric value, tolerating currency symbols, thousands
// separators and unit suffixes in string fields.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		cleaned := numericJunk.ReplaceAllString(n, "")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
