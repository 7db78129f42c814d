package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
}

func TestOpenAIClient_GenerateText(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "# Aldoria\n\nA kingdom.")
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	text, err := c.GenerateText(context.Background(), TextRequest{System: "be terse", Prompt: "Write Aldoria"})
	require.NoError(t, err)
	assert.Equal(t, "# Aldoria\n\nA kingdom.", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be terse", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Nil(t, got.ResponseFormat)
}

func TestOpenAIClient_ModelOverride(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		chatReply(w, "ok")
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Len(t, got.Messages, 1)
}

func TestOpenAIClient_GenerateStructured(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		chatReply(w, `{"summary": "A harbor town", "outline": ["Geography"], "chronology_numeric": null}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	var p testPlan
	err := c.GenerateStructured(context.Background(), TextRequest{Prompt: "plan"}, testPlanSchema, &p)
	require.NoError(t, err)
	assert.Equal(t, "A harbor town", p.Summary)

	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok, "response_format must be sent")
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "plan", js["name"])
	assert.Equal(t, true, js["strict"])
}

func TestOpenAIClient_StructuredMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, `{"summary": "missing the rest"}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	var p testPlan
	err := c.GenerateStructured(context.Background(), TextRequest{Prompt: "plan"}, testPlanSchema, &p)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.False(t, IsUnavailable(err))
}

func TestOpenAIClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestOpenAIClient_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestOpenAIClient_CircuitOpensAfterOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "open", c.BreakerState())
}

func TestOpenAIClient_GenerateImageBase64(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var got openAIImageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png), "revised_prompt": "a castle"}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	img, err := c.GenerateImage(context.Background(), "castle on a hill", "")
	require.NoError(t, err)
	assert.Equal(t, png, img.Bytes)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "a castle", img.RevisedPrompt)

	assert.Equal(t, "dall-e-3", got.Model)
	assert.Equal(t, "b64_json", got.ResponseFormat)
	assert.Equal(t, "1024x1024", got.Size)
}

func TestOpenAIClient_GenerateImageURL(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		var req openAIImageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Empty(t, req.ResponseFormat, "gpt-image models must not receive response_format")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": srv.URL + "/blob/img.jpg"}},
		})
	})
	mux.HandleFunc("/blob/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write(jpeg)
	})

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL})
	img, err := c.GenerateImage(context.Background(), "castle", "gpt-image-1")
	require.NoError(t, err)
	assert.Equal(t, jpeg, img.Bytes)
	assert.Equal(t, "image/jpeg", img.MimeType)
}

func TestOpenAIClient_GenerateImageEmptyPrompt(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.GenerateImage(context.Background(), "   ", "")
	assert.Error(t, err)
}

func TestOpenAIEmbeddingClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.25, -0.5}}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{BaseURL: srv.URL})
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, vec)
	assert.Equal(t, "text-embedding-3-small", c.GetModel())
}
