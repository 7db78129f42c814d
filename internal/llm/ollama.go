package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient handles communication with Ollama API for local LLM inference.
// It wraps all HTTP calls with circuit breaker protection to prevent cascading failures.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for generations and embeddings (default: qwen2.5:7b)
	Model string

	// Timeout is the request timeout duration (default: 120s). Local models
	// writing a full article are slow.
	Timeout time.Duration

	OnBreakerStateChange func(name, from, to string)
}

type ollamaGenerateRequest struct {
	Model  string          `json:"model"`
	System string          `json:"system,omitempty"`
	Prompt string          `json:"prompt"`
	Stream bool            `json:"stream"`
	Format json.RawMessage `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// The embeddings field is a 2D array; we always use the first (and only) embedding.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreakerWithConfig(CircuitBreakerConfig{
			Name:          "ollama",
			OnStateChange: config.OnBreakerStateChange,
		}),
		model:   config.Model,
		timeout: config.Timeout,
	}
}

// GenerateText sends a generation request to Ollama and returns the response text.
func (c *OllamaClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	return c.generate(ctx, req, nil)
}

// GenerateStructured passes the schema as Ollama's format parameter, which
// constrains decoding to matching JSON.
func (c *OllamaClient) GenerateStructured(ctx context.Context, req TextRequest, schema Schema, out any) error {
	format, err := json.Marshal(schema.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal schema %s: %w", schema.Name, err)
	}
	text, err := c.generate(ctx, req, format)
	if err != nil {
		return err
	}
	return DecodeStructured(text, schema, out)
}

func (c *OllamaClient) generate(ctx context.Context, req TextRequest, format json.RawMessage) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		model := req.Model
		if model == "" {
			model = c.model
		}
		body := ollamaGenerateRequest{
			Model:  model,
			System: req.System,
			Prompt: req.Prompt,
			Stream: false,
			Format: format,
		}
		var respData ollamaGenerateResponse
		if err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/generate", nil, body, &respData); err != nil {
			return nil, err
		}
		return respData.Response, nil
	})
	if err != nil {
		return "", classify("ollama", err)
	}
	return result.(string), nil
}

// Embed generates embeddings for the given text using the configured model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var respData ollamaEmbedResponse
		body := ollamaEmbedRequest{Model: c.model, Input: text}
		if err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/embed", nil, body, &respData); err != nil {
			return nil, err
		}
		if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("%w: ollama returned empty embedding vector", ErrMalformedOutput)
		}
		return respData.Embeddings[0], nil
	})
	if err != nil {
		return nil, classify("ollama", err)
	}
	return result.([]float32), nil
}

// HealthCheck verifies that Ollama is reachable by checking the /api/version endpoint.
// This does not use circuit breaker protection since it's a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
)
