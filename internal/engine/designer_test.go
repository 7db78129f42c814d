package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
)

const testDesign = `{
  "name": "Rainy Metro!",
  "description": "A haunted subway system.",
  "system_prompt_planner": "Plan ghost stories.",
  "system_prompt_writer": "Write like a transit report.",
  "system_prompt_image": "",
  "style": "",
  "generate_images": true,
  "seed_article_title": "## The Lost Commuters",
  "seed_article_description": "Introduce the vanished crew."
}`

func TestWorldDesigner_Design(t *testing.T) {
	text := newScriptedText()
	text.design = testDesign
	d := NewWorldDesigner(text, "image-model", logger.NewNop())

	design, err := d.Design(context.Background(), "a haunted subway")
	require.NoError(t, err)
	assert.Equal(t, "Rainy-Metro", design.Name)
	assert.Equal(t, "A haunted subway system.", design.Description)
	assert.Equal(t, "Plan ghost stories.", design.SystemPromptPlanner)
	assert.NotEmpty(t, design.SystemPromptImage, "empty prompts fall back to defaults")
	assert.True(t, design.GenerateImages)
	assert.Equal(t, "The Lost Commuters", design.SeedArticleTitle)
	assert.Equal(t, "Introduce the vanished crew.", design.SeedArticleDescription)
	assert.Equal(t, "scripted-model", design.LLMModel)
	assert.Equal(t, "image-model", design.ImageModel)
}

func TestWorldDesigner_Errors(t *testing.T) {
	text := newScriptedText()
	text.design = `{"name": "x"}`
	d := NewWorldDesigner(text, "", logger.NewNop())

	_, err := d.Design(context.Background(), "idea")
	assert.ErrorIs(t, err, llm.ErrMalformedOutput)

	_, err = d.Design(context.Background(), "   ")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSanitizeWorldName(t *testing.T) {
	tests := map[string]string{
		"Rainy Metro":         "Rainy-Metro",
		"  star_wars  ":       "star_wars",
		"Ash & Ember: Reborn": "Ash-Ember-Reborn",
		"../../etc":           "etc",
		"---":                 "world",
		"":                    "world",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeWorldName(in), in)
	}
}
