// Package format turns a canonical result mapping into the final answer.
// This is the only layer that resolves artifact references to their encoded
// form: the generation service sees short placeholder tags, and the tags
// are substituted with data URIs after the service responds.
package format

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/internal/jsonx"
	"github.com/richinex/delphi/llm"
	"github.com/richinex/delphi/model"
)

// maxValueChars bounds any single string shown to the generation service.
const maxValueChars = 1000

var placeholderPattern = regexp.MustCompile(`\[FILE_AVAILABLE: ([^\]]+)\]`)

// Formatter produces the terminal answer for a run.
type Formatter struct {
	client *llm.Client
	store  *artifact.Store
	logger *slog.Logger
}

func NewFormatter(client *llm.Client, store *artifact.Store, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{client: client, store: store, logger: logger}
}

// Format projects the result for the generation service, requests the
// final text and resolves artifact placeholders in the response. When the
// answer looks like structured data it is returned parsed; a single
// bracket-closing repair is attempted on malformed output, never more.
func (f *Formatter) Format(ctx context.Context, question, instructions string, result *model.Mapping) (any, error) {
	projection := f.project(result)
	projected, err := json.MarshalIndent(projection, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("format: project result: %w", err)
	}

	answer, err := f.client.Complete(ctx, formatSystemPrompt, formatPrompt(question, instructions, string(projected)))
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	answer = strings.TrimSpace(jsonx.StripFences(answer))
	answer, err = f.resolvePlaceholders(answer)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(answer, "{") || strings.HasPrefix(answer, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(answer), &parsed); err == nil {
			return parsed, nil
		}
		if repaired, ok := jsonx.Repair(answer); ok {
			if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
				f.logger.Debug("answer repaired after malformed structured output")
				return parsed, nil
			}
		}
		// Not valid structured data even after one repair; hand it back as text.
	}
	return answer, nil
}

// project builds the version of the result shown to the generation
// service: internal marker keys dropped, artifact references replaced with
// placeholder tags, oversized strings truncated.
func (f *Formatter) project(result *model.Mapping) *model.Mapping {
	projected := model.NewMapping()
	for _, key := range result.Keys() {
		if strings.HasPrefix(key, "_") {
			continue
		}
		value, _ := result.Get(key)
		projected.Set(key, projectValue(value))
	}
	return projected
}

func projectValue(v any) any {
	switch val := v.(type) {
	case artifact.Ref:
		return fmt.Sprintf("[FILE_AVAILABLE: %s]", val.Name)
	case *artifact.Ref:
		return fmt.Sprintf("[FILE_AVAILABLE: %s]", val.Name)
	case string:
		if artifact.IsRefName(val) {
			return fmt.Sprintf("[FILE_AVAILABLE: %s]", val)
		}
		if len(val) > maxValueChars {
			return val[:maxValueChars] + fmt.Sprintf("... (%d chars total)", len(val))
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = projectValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if strings.HasPrefix(k, "_") {
				continue
			}
			out[k] = projectValue(item)
		}
		return out
	case *model.Mapping:
		out := model.NewMapping()
		for _, k := range val.Keys() {
			if strings.HasPrefix(k, "_") {
				continue
			}
			item, _ := val.Get(k)
			out.Set(k, projectValue(item))
		}
		return out
	default:
		return v
	}
}

// resolvePlaceholders substitutes every placeholder tag with the referenced
// artifact's data URI. A placeholder naming a missing artifact is an error;
// an answer must never ship a dangling tag.
func (f *Formatter) resolvePlaceholders(answer string) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatch(answer, -1)
	for _, m := range matches {
		name := m[1]
		ref := artifact.Ref{Name: name}
		uri, err := f.store.DataURI(ref)
		if err != nil {
			return "", fmt.Errorf("format: resolve artifact %s: %w", name, err)
		}
		answer = strings.ReplaceAll(answer, m[0], uri)
	}
	return answer, nil
}

const formatSystemPrompt = `You turn analysis results into a final answer for the user.

Rules:
- answer the question directly from the provided results. Do not invent values.
- if the question asks for a specific output shape (for example a JSON array of strings), produce exactly that shape with no surrounding prose.
- tags of the form [FILE_AVAILABLE: name] stand for stored files. Keep any tag you use verbatim and unmodified; never describe, rename or expand it.`

func formatPrompt(question, instructions, projected string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	if instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", instructions)
	}
	fmt.Fprintf(&b, "\nResults:\n%s\n", projected)
	return b.String()
}
