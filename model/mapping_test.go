package model

import (
	"encoding/json"
	"testing"
)

func TestMappingPreservesInsertionOrder(t *testing.T) {
	m := NewMapping()
	m.Set("zebra", 1)
	m.Set("apple", 2)
	m.Set("mango", 3)

	keys := m.Keys()
	want := []string{"zebra", "apple", "mango"}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: expected %q, got %q", i, k, keys[i])
		}
	}

	// Overwriting keeps the original position.
	m.Set("apple", 20)
	if m.Keys()[1] != "apple" {
		t.Errorf("expected apple to keep position 1, got keys %v", m.Keys())
	}
	if v, _ := m.Get("apple"); v != 20 {
		t.Errorf("expected updated value 20, got %v", v)
	}
}

func TestMappingMarshalOrder(t *testing.T) {
	m := NewMapping()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("c", 3)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"b":1,"a":2,"c":3}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestMappingUnmarshalPreservesSourceOrder(t *testing.T) {
	var m Mapping
	if err := json.Unmarshal([]byte(`{"second": 2, "first": 1, "third": 3}`), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := m.Keys()
	want := []string{"second", "first", "third"}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: expected %q, got %q", i, k, keys[i])
		}
	}
}

func TestMappingDelete(t *testing.T) {
	m := NewMapping()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Delete("b")

	if m.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", m.Len())
	}
	if _, ok := m.Get("b"); ok {
		t.Error("expected b to be gone")
	}
	keys := m.Keys()
	if keys[0] != "a" || keys[1] != "c" {
		t.Errorf("unexpected keys after delete: %v", keys)
	}
}

func TestFromListNormalization(t *testing.T) {
	values := []any{"a", "b", "c"}
	m := FromList(values)

	for i, want := range values {
		key := []string{"result_0", "result_1", "result_2"}[i]
		got, ok := m.Get(key)
		if !ok || got != want {
			t.Errorf("expected %s=%v, got %v (present=%v)", key, want, got, ok)
		}
	}
	if f, _ := m.Get(KeyOriginalFormat); f != FormatList {
		t.Errorf("expected %s=%q, got %v", KeyOriginalFormat, FormatList, f)
	}
	listData, ok := m.Get(KeyListData)
	if !ok {
		t.Fatalf("expected %s to be present", KeyListData)
	}
	original, ok := listData.([]any)
	if !ok || len(original) != 3 {
		t.Fatalf("expected original list of 3, got %v", listData)
	}
	for i, v := range values {
		if original[i] != v {
			t.Errorf("original[%d]: expected %v, got %v", i, v, original[i])
		}
	}
}

func TestFromMapAppendsMissingKeys(t *testing.T) {
	m := FromMap(map[string]any{"x": 1, "y": 2, "z": 3}, []string{"y", "x"})
	keys := m.Keys()
	if keys[0] != "y" || keys[1] != "x" {
		t.Errorf("expected ordered prefix [y x], got %v", keys)
	}
	if m.Len() != 3 {
		t.Errorf("expected all 3 keys kept, got %d", m.Len())
	}
}
