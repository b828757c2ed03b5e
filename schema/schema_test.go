package schema

import (
	"reflect"
	"testing"
)

func TestToGeminiNilInput(t *testing.T) {
	got := ToGemini(nil)
	want := map[string]any{"type": "OBJECT", "properties": map[string]any{}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToGemini(nil) = %#v, want %#v", got, want)
	}
}

func TestToGeminiBasicProperties(t *testing.T) {
	in := map[string]any{
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	}
	got := ToGemini(in)
	want := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"name": map[string]any{"type": "STRING"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToGemini(%#v) = %#v, want %#v", in, got, want)
	}
}

func TestToGeminiPreservesNumericsDistinctFromAbsent(t *testing.T) {
	in := map[string]any{
		"type":    "integer",
		"minimum": 0,
		"maximum": -1,
	}
	got := ToGemini(in)
	if got["minimum"] != 0 {
		t.Errorf("minimum = %v, want 0 (present, not absent)", got["minimum"])
	}
	if got["maximum"] != -1 {
		t.Errorf("maximum = %v, want -1", got["maximum"])
	}
	if got["type"] != "INTEGER" {
		t.Errorf("type = %v, want INTEGER", got["type"])
	}
}

func TestToGeminiRecursesIntoItemsAndArray(t *testing.T) {
	in := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []any{"id"},
		},
	}
	got := ToGemini(in)
	items, ok := got["items"].(map[string]any)
	if !ok {
		t.Fatalf("items missing or wrong type: %#v", got["items"])
	}
	if items["type"] != "OBJECT" {
		t.Errorf("items.type = %v, want OBJECT", items["type"])
	}
	required, ok := items["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "id" {
		t.Errorf("items.required = %#v, want [id]", items["required"])
	}
}

func TestToGeminiIdempotent(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "search text",
				"enum":        []any{"a", "b"},
			},
		},
		"required": []any{"query"},
	}
	once := ToGemini(in)
	twice := ToGemini(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("conversion is not idempotent:\nonce=%#v\ntwice=%#v", once, twice)
	}
}

func TestToGeminiMissingTypeDefaultsToObjectWhenPropertiesPresent(t *testing.T) {
	in := map[string]any{
		"properties": map[string]any{},
	}
	got := ToGemini(in)
	if got["type"] != "OBJECT" {
		t.Errorf("type = %v, want OBJECT when properties present but type absent", got["type"])
	}
}
