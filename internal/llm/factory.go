package llm

import (
	"fmt"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
)

// breakerLogger logs circuit transitions at warn level.
func breakerLogger(log *logger.Logger) func(name, from, to string) {
	if log == nil {
		return nil
	}
	return func(name, from, to string) {
		log.Warn("llm circuit breaker state change", "provider", name, "from", from, "to", to)
	}
}

// NewTextGenerator creates the TextGenerator for the configured provider.
func NewTextGenerator(cfg config.LLMConfig, log *logger.Logger) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("llm: LOREWIKI_OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:               cfg.OpenAIAPIKey,
			Model:                cfg.Model,
			BaseURL:              cfg.OpenAIBaseURL,
			Timeout:              cfg.Timeout,
			OnBreakerStateChange: breakerLogger(log),
		}), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("llm: LOREWIKI_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropicClient(AnthropicConfig{
			APIKey:               cfg.AnthropicAPIKey,
			Model:                cfg.Model,
			Timeout:              cfg.Timeout,
			OnBreakerStateChange: breakerLogger(log),
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:              cfg.OllamaURL,
			Model:                cfg.Model,
			Timeout:              cfg.Timeout,
			OnBreakerStateChange: breakerLogger(log),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewImageGenerator creates the image generator. Images go through an
// OpenAI-compatible images endpoint; (nil, nil) means no key is configured
// and image generation is disabled process-wide.
func NewImageGenerator(cfg *config.Config, log *logger.Logger) (ImageGenerator, error) {
	apiKey := cfg.Image.APIKey
	if apiKey == "" {
		apiKey = cfg.LLM.OpenAIAPIKey
	}
	if apiKey == "" {
		return nil, nil
	}
	baseURL := cfg.Image.BaseURL
	if baseURL == "" {
		baseURL = cfg.LLM.OpenAIBaseURL
	}
	return NewOpenAIClient(OpenAIConfig{
		APIKey:               apiKey,
		ImageModel:           cfg.Image.Model,
		ImageSize:            cfg.Image.Size,
		BaseURL:              baseURL,
		Timeout:              cfg.LLM.Timeout,
		OnBreakerStateChange: breakerLogger(log),
	}), nil
}

// NewEmbeddingGenerator creates the EmbeddingGenerator.
// Returns (nil, nil) when no embedding model is configured or the provider
// has no embeddings API (Anthropic).
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	if cfg.EmbeddingModel == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.EmbeddingModel,
			BaseURL: cfg.OpenAIBaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.EmbeddingModel}), nil
	default:
		return nil, nil
	}
}
