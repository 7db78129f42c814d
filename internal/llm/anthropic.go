package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-haiku-4-5-20251001
	BaseURL string        // default: https://api.anthropic.com
	Timeout time.Duration // default: 60s

	OnBreakerStateChange func(name, from, to string)
}

// AnthropicClient implements TextGenerator using the Anthropic Messages API.
// The API has no native schema mode, so structured generations carry the
// schema in the system prompt and the reply is extracted and validated.
type AnthropicClient struct {
	cfg            AnthropicConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreakerWithConfig(CircuitBreakerConfig{
			Name:          "anthropic",
			OnStateChange: cfg.OnBreakerStateChange,
		}),
	}
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// GenerateText sends a system+user exchange and returns the reply text.
func (c *AnthropicClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, req)
	})
	if err != nil {
		return "", classify("anthropic", err)
	}
	return result.(string), nil
}

// GenerateStructured appends the schema to the system prompt and decodes
// the first JSON object in the reply.
func (c *AnthropicClient) GenerateStructured(ctx context.Context, req TextRequest, schema Schema, out any) error {
	if req.System != "" {
		req.System += "\n\n"
	}
	req.System += schema.Instructions()

	text, err := c.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	return DecodeStructured(text, schema, out)
}

func (c *AnthropicClient) complete(ctx context.Context, req TextRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	body := anthropicMessagesRequest{
		Model:     model,
		MaxTokens: 4096,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}

	var respData anthropicMessagesResponse
	if err := postJSON(ctx, c.client, "anthropic", c.cfg.BaseURL+"/v1/messages", headers, body, &respData); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range respData.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic returned empty content", ErrMalformedOutput)
	}
	return sb.String(), nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.cfg.Model
}

var _ TextGenerator = (*AnthropicClient)(nil)
