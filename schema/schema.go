// Package schema converts JSON-schema-shaped tool parameter
// definitions into each provider's native schema flavor (spec.md
// §4.2). The Google/Gemini flavor is the representative, fully
// specified case; other providers pass JSON Schema through largely
// unchanged and so do not need a dedicated converter here.
package schema

import "strings"

// preservedKeys are copied through to the converted schema unchanged,
// when present, per spec.md §4.2.
var preservedKeys = []string{"description", "enum", "format", "minimum", "maximum"}

// ToGemini converts a JSON-schema-ish map into Gemini's flavor:
// uppercased type enums, OBJECT defaulting, and recursive conversion
// of properties/items. A nil or empty input converts to an empty
// OBJECT schema, matching spec.md's normative rule.
func ToGemini(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{
			"type":       "OBJECT",
			"properties": map[string]any{},
		}
	}

	out := map[string]any{}

	typ, hasType := stringField(in, "type")
	_, hasProps := in["properties"]
	_, hasRequired := in["required"]

	switch {
	case hasType:
		out["type"] = strings.ToUpper(typ)
	case hasProps || hasRequired:
		out["type"] = "OBJECT"
	}

	for _, key := range preservedKeys {
		if v, ok := in[key]; ok {
			out[key] = v
		}
	}

	if required, ok := in["required"].([]string); ok {
		out["required"] = required
	} else if requiredAny, ok := in["required"].([]any); ok {
		req := make([]string, 0, len(requiredAny))
		for _, r := range requiredAny {
			if s, ok := r.(string); ok {
				req = append(req, s)
			}
		}
		out["required"] = req
	}

	if props, ok := asStringMap(in["properties"]); ok {
		converted := make(map[string]any, len(props))
		for name, prop := range props {
			if propMap, ok := asStringMap(prop); ok {
				converted[name] = ToGemini(propMap)
			}
		}
		out["properties"] = converted
	} else if _, hasType := out["type"]; hasType && out["type"] == "OBJECT" {
		if _, already := out["properties"]; !already {
			out["properties"] = map[string]any{}
		}
	}

	if items, ok := asStringMap(in["items"]); ok {
		out["items"] = ToGemini(items)
	}

	return out
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func asStringMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
