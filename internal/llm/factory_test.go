package llm

import (
	"testing"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextGenerator(t *testing.T) {
	log := logger.NewNop()

	gen, err := NewTextGenerator(config.LLMConfig{Provider: "openai", OpenAIAPIKey: "k", Model: "gpt-4o"}, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)
	assert.Equal(t, "gpt-4o", gen.GetModel())

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k"}, log)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, gen)

	gen, err = NewTextGenerator(config.LLMConfig{Provider: "ollama"}, log)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, gen)

	_, err = NewTextGenerator(config.LLMConfig{Provider: "openai"}, log)
	assert.Error(t, err, "missing key must be rejected")

	_, err = NewTextGenerator(config.LLMConfig{Provider: "bogus"}, log)
	assert.Error(t, err)
}

func TestNewImageGenerator(t *testing.T) {
	cfg := &config.Config{}
	gen, err := NewImageGenerator(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, gen, "no key disables images")

	cfg.LLM.OpenAIAPIKey = "k"
	gen, err = NewImageGenerator(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestNewEmbeddingGenerator(t *testing.T) {
	gen, err := NewEmbeddingGenerator(config.LLMConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewEmbeddingGenerator(config.LLMConfig{Provider: "openai", EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.NotNil(t, gen)

	gen, err = NewEmbeddingGenerator(config.LLMConfig{Provider: "anthropic", EmbeddingModel: "x"})
	require.NoError(t, err)
	assert.Nil(t, gen)
}
