// Package jsonx provides JSON extraction and repair utilities for parsing
// generation-service responses.
//
// The service often returns JSON wrapped in markdown fences or surrounded by
// commentary. These helpers recover the JSON payload without guessing at
// semantics.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a single enclosing markdown code fence from a response,
// with or without a language tag. Text without a fence is returned trimmed.
func StripFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		// Drop a language tag on the fence line (```json, ```python, ...).
		if idx := strings.IndexByte(trimmed, '\n'); idx != -1 {
			firstLine := strings.TrimSpace(trimmed[:idx])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]\"") {
				trimmed = trimmed[idx+1:]
			}
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// Extract finds and returns the JSON portion of a response string. It handles
// pure JSON, fenced JSON, and a JSON object or array embedded in prose (first
// opening bracket to last matching closing bracket).
func Extract(response string) (string, error) {
	response = StripFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(response, pair[0])
		if start == -1 {
			continue
		}
		end := strings.LastIndex(response, pair[1])
		if end <= start {
			continue
		}
		candidate := response[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in response: %q", preview)
}

// Decode extracts JSON from a response and unmarshals it into result.
func Decode(response string, result any) error {
	jsonStr, err := Extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), result); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

// Repair makes a single best-effort attempt at fixing truncated JSON by
// closing an unterminated top-level object or array. It never loops: one
// attempt, then the caller decides. Returns the repaired text and whether it
// now parses.
func Repair(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text, false
	}

	var probe any
	if json.Unmarshal([]byte(trimmed), &probe) == nil {
		return trimmed, true
	}

	var repaired string
	switch {
	case strings.HasPrefix(trimmed, "{") && !strings.HasSuffix(trimmed, "}"):
		repaired = trimmed + "}"
	case strings.HasPrefix(trimmed, "[") && !strings.HasSuffix(trimmed, "]"):
		repaired = trimmed + "]"
	default:
		return trimmed, false
	}

	if json.Unmarshal([]byte(repaired), &probe) == nil {
		return repaired, true
	}
	return trimmed, false
}
