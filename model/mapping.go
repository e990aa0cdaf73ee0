// Package model provides domain types shared across packages.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marker keys used when a list-shaped result is normalized into a mapping.
// Keys starting with an underscore are internal and are stripped before any
// value is shown to the generation service.
const (
	KeyOriginalFormat = "_original_format"
	KeyListData       = "_list_data"
	FormatList        = "list"
)

// Mapping is an insertion-ordered string-keyed mapping. It is the canonical
// shape every analysis and extraction result is coerced into: values are
// primitives, nested mappings/sequences of primitives, or artifact reference
// names - never raw encoded binary payloads.
type Mapping struct {
	keys   []string
	values map[string]any
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]any)}
}

// Set stores a value under key, preserving first-insertion order.
func (m *Mapping) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it exists.
func (m *Mapping) Get(key string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes a key if present.
func (m *Mapping) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// MarshalJSON writes the mapping as a JSON object preserving key order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", key, err)
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving the key order of the source.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	m.keys = nil
	m.values = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode value for key %q: %w", key, err)
		}
		m.Set(key, value)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// FromList normalizes a list-shaped result into the canonical mapping shape:
// result_0..result_n entries plus markers preserving the original ordering,
// so downstream consumers only ever handle one shape.
func FromList(values []any) *Mapping {
	m := NewMapping()
	for i, v := range values {
		m.Set(fmt.Sprintf("result_%d", i), v)
	}
	m.Set(KeyOriginalFormat, FormatList)
	m.Set(KeyListData, values)
	return m
}

// FromMap builds a Mapping from a plain map with the given key order. Keys
// missing from order are appended in map-iteration order afterwards, so no
// value is ever dropped.
func FromMap(values map[string]any, order []string) *Mapping {
	m := NewMapping()
	for _, k := range order {
		if v, ok := values[k]; ok {
			m.Set(k, v)
		}
	}
	for k, v := range values {
		if _, ok := m.Get(k); !ok {
			m.Set(k, v)
		}
	}
	return m
}

// Clone returns a shallow copy of the mapping.
func (m *Mapping) Clone() *Mapping {
	if m == nil {
		return nil
	}
	out := NewMapping()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}
