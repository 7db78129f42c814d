package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_GenerateStructured(t *testing.T) {
	var got anthropicMessagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{
				"type": "text",
				"text": "Here is the plan:\n```json\n{\"summary\": \"s\", \"outline\": [\"a\"], \"chronology_numeric\": 12}\n```",
			}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "key", BaseURL: srv.URL})
	var p testPlan
	err := c.GenerateStructured(context.Background(), TextRequest{System: "planner", Prompt: "plan"}, testPlanSchema, &p)
	require.NoError(t, err)
	assert.Equal(t, "s", p.Summary)
	require.NotNil(t, p.ChronologyNumeric)
	assert.Equal(t, 12.0, *p.ChronologyNumeric)

	assert.Contains(t, got.System, "planner")
	assert.Contains(t, got.System, "JSON Schema")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "plan", got.Messages[0].Content)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL})
	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL})
	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	assert.True(t, IsUnavailable(err))
}
