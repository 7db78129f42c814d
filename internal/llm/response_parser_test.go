package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with triple backticks",
			input:    "```\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with surrounding text",
			input:    "Here is the JSON:\n{\"key\": \"value\"}\nEnd of JSON",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "nested JSON object",
			input:    `{"outer": {"inner": "value"}}`,
			wantJSON: `{"outer": {"inner": "value"}}`,
		},
		{
			name:     "JSON with escaped quotes in string",
			input:    `{"text": "He said \"hello\""}`,
			wantJSON: `{"text": "He said \"hello\""}`,
		},
		{
			name:     "JSON with backslash escapes",
			input:    `{"path": "C:\\Users\\test"}`,
			wantJSON: `{"path": "C:\\Users\\test"}`,
		},
		{
			name:     "no JSON present",
			input:    "just some text without json",
			wantJSON: "just some text without json",
		},
		{
			name:     "empty string",
			input:    "",
			wantJSON: "",
		},
		{
			name:     "JSON with newlines in strings",
			input:    `{"text": "line1\nline2"}`,
			wantJSON: `{"text": "line1\nline2"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON(tt.input)
			if got != tt.wantJSON {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.wantJSON)
			}
		})
	}
}

type testPlan struct {
	Summary           string   `json:"summary"`
	Outline           []string `json:"outline"`
	ChronologyNumeric *float64 `json:"chronology_numeric"`
}

var testPlanSchema = Schema{
	Name: "plan",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":            map[string]any{"type": "string"},
			"outline":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"chronology_numeric": map[string]any{"type": []any{"number", "null"}},
		},
		"required": []any{"summary", "outline", "chronology_numeric"},
	},
}

func TestDecodeStructured(t *testing.T) {
	t.Run("valid object in code fence", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured("```json\n{\"summary\": \"A city\", \"outline\": [\"History\"], \"chronology_numeric\": 1204.5}\n```", testPlanSchema, &p)
		require.NoError(t, err)
		assert.Equal(t, "A city", p.Summary)
		assert.Equal(t, []string{"History"}, p.Outline)
		require.NotNil(t, p.ChronologyNumeric)
		assert.InDelta(t, 1204.5, *p.ChronologyNumeric, 1e-9)
	})

	t.Run("nullable field may be null", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured(`{"summary": "s", "outline": [], "chronology_numeric": null}`, testPlanSchema, &p)
		require.NoError(t, err)
		assert.Nil(t, p.ChronologyNumeric)
	})

	t.Run("missing required field", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured(`{"summary": "s", "chronology_numeric": null}`, testPlanSchema, &p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedOutput))
		assert.Contains(t, err.Error(), "outline")
	})

	t.Run("non-nullable field is null", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured(`{"summary": null, "outline": [], "chronology_numeric": null}`, testPlanSchema, &p)
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("not json", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured("I cannot help with that.", testPlanSchema, &p)
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("wrong field type", func(t *testing.T) {
		var p testPlan
		err := DecodeStructured(`{"summary": 5, "outline": [], "chronology_numeric": null}`, testPlanSchema, &p)
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})
}

func TestSchemaRequired(t *testing.T) {
	s := Schema{Definition: map[string]any{"required": []string{"a", "b"}}}
	assert.Equal(t, []string{"a", "b"}, s.Required())
	assert.Nil(t, Schema{}.Required())
	assert.Contains(t, testPlanSchema.Instructions(), "chronology_numeric")
}
