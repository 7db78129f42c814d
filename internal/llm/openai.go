package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // default: gpt-4o-mini
	ImageModel string        // default: dall-e-3
	ImageSize  string        // default: 1024x1024
	BaseURL    string        // default: https://api.openai.com
	Timeout    time.Duration // default: 60s

	OnBreakerStateChange func(name, from, to string)
}

// OpenAIClient implements TextGenerator and ImageGenerator using the OpenAI
// chat completions and images APIs.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024x1024"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreakerWithConfig(CircuitBreakerConfig{
			Name:          "openai",
			OnStateChange: cfg.OnBreakerStateChange,
		}),
	}
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat map[string]any      `json:"response_format,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateText sends a system+user exchange and returns the reply text.
func (c *OpenAIClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	return c.chat(ctx, req, nil)
}

// GenerateStructured uses response_format json_schema so the model is
// constrained to the schema, then validates and decodes the reply.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, req TextRequest, schema Schema, out any) error {
	format := map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   schema.Name,
			"schema": schema.Definition,
			"strict": true,
		},
	}
	text, err := c.chat(ctx, req, format)
	if err != nil {
		return err
	}
	return DecodeStructured(text, schema, out)
}

func (c *OpenAIClient) chat(ctx context.Context, req TextRequest, format map[string]any) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, req, format)
	})
	if err != nil {
		return "", classify("openai", err)
	}
	return result.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, req TextRequest, format map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	body := openAIChatRequest{
		Model:          model,
		Temperature:    0.7,
		ResponseFormat: format,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIChatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, openAIChatMessage{Role: "user", Content: req.Prompt})

	var respData openAIChatResponse
	if err := postJSON(ctx, c.client, "openai", c.cfg.BaseURL+"/v1/chat/completions", c.authHeaders(), body, &respData); err != nil {
		return "", err
	}
	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrMalformedOutput)
	}
	if r := respData.Choices[0].Message.Refusal; r != "" {
		return "", fmt.Errorf("%w: model refused: %s", ErrMalformedOutput, r)
	}
	return respData.Choices[0].Message.Content, nil
}

type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"` // b64_json|url
}

type openAIImageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage synthesizes one image. The payload is returned inline when
// the API sends base64 and downloaded when it sends a URL.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, model string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, errors.New("image prompt required")
	}
	if model == "" {
		model = c.cfg.ImageModel
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.generateImage(ctx, prompt, model)
	})
	if err != nil {
		return Image{}, classify("openai", err)
	}
	return result.(Image), nil
}

func (c *OpenAIClient) generateImage(ctx context.Context, prompt, model string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := openAIImageRequest{
		Model:  model,
		Prompt: prompt,
		N:      1,
		Size:   c.cfg.ImageSize,
	}
	// gpt-image models always return base64 and reject the parameter.
	if !strings.HasPrefix(strings.ToLower(model), "gpt-image-") {
		body.ResponseFormat = "b64_json"
	}

	var resp openAIImageResponse
	if err := postJSON(ctx, c.client, "openai", c.cfg.BaseURL+"/v1/images/generations", c.authHeaders(), body, &resp); err != nil {
		return Image{}, err
	}
	if len(resp.Data) == 0 {
		return Image{}, fmt.Errorf("%w: no image returned", ErrMalformedOutput)
	}

	item := resp.Data[0]
	out := Image{RevisedPrompt: strings.TrimSpace(item.RevisedPrompt), MimeType: "image/png"}
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(raw) == 0 {
			return Image{}, fmt.Errorf("%w: decode image base64: %v", ErrMalformedOutput, err)
		}
		out.Bytes = raw
		return out, nil
	}
	if u := strings.TrimSpace(item.URL); u != "" {
		raw, ct, err := download(ctx, c.client, "openai", u)
		if err != nil {
			return Image{}, fmt.Errorf("download generated image: %w", err)
		}
		out.Bytes = raw
		if ct = strings.TrimSpace(strings.Split(ct, ";")[0]); ct != "" {
			out.MimeType = ct
		}
		return out, nil
	}
	return Image{}, fmt.Errorf("%w: image response missing b64_json and url", ErrMalformedOutput)
}

func (c *OpenAIClient) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// BreakerState exposes the circuit state for health reporting.
func (c *OpenAIClient) BreakerState() string {
	return c.circuitBreaker.State()
}

// Compile-time assertions.
var (
	_ TextGenerator  = (*OpenAIClient)(nil)
	_ ImageGenerator = (*OpenAIClient)(nil)
)

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedding client.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 30s
}

// OpenAIEmbeddingClient implements EmbeddingGenerator using the OpenAI embeddings API.
type OpenAIEmbeddingClient struct {
	cfg            OpenAIEmbeddingConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIEmbeddingClient creates a new OpenAI embedding client.
func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbeddingClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("openai-embeddings"),
	}
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, classify("openai", err)
	}
	return result.([]float32), nil
}

func (c *OpenAIEmbeddingClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var respData openAIEmbeddingResponse
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	body := openAIEmbeddingRequest{Model: c.cfg.Model, Input: text}
	if err := postJSON(ctx, c.client, "openai", c.cfg.BaseURL+"/v1/embeddings", headers, body, &respData); err != nil {
		return nil, err
	}
	if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai returned empty embedding", ErrMalformedOutput)
	}

	raw := respData.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.cfg.Model
}

var _ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)
