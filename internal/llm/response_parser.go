package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema describes the JSON object a structured generation must produce.
// Definition is a JSON Schema document; providers that support native
// structured output receive it verbatim.
type Schema struct {
	Name       string
	Definition map[string]any
}

// Required returns the top-level required property names of the schema.
func (s Schema) Required() []string {
	switch v := s.Definition["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if name, ok := r.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// Instructions renders the schema as prompt text for providers without
// native structured output.
func (s Schema) Instructions() string {
	raw, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		return ""
	}
	return "Respond ONLY with a single JSON object matching this JSON Schema, with no prose before or after it:\n" + string(raw)
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text
}

// DecodeStructured parses model output into out after checking that every
// required property of schema is present and non-null. Failures wrap
// ErrMalformedOutput.
func DecodeStructured(text string, schema Schema, out any) error {
	raw := extractJSON(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, schema.Name, err)
	}
	for _, name := range schema.Required() {
		v, ok := fields[name]
		if !ok {
			return fmt.Errorf("%w: %s: missing required field %q", ErrMalformedOutput, schema.Name, name)
		}
		if string(v) == "null" && !schema.nullable(name) {
			return fmt.Errorf("%w: %s: required field %q is null", ErrMalformedOutput, schema.Name, name)
		}
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, schema.Name, err)
	}
	return nil
}

// nullable reports whether the property's declared type admits null.
func (s Schema) nullable(name string) bool {
	props, _ := s.Definition["properties"].(map[string]any)
	prop, _ := props[name].(map[string]any)
	switch t := prop["type"].(type) {
	case string:
		return t == "null"
	case []string:
		for _, v := range t {
			if v == "null" {
				return true
			}
		}
	case []any:
		for _, v := range t {
			if v == "null" {
				return true
			}
		}
	}
	return false
}
