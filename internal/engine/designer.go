package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/pkg/types"
)

// WorldDesigner turns a free-text idea into a world configuration and a
// seed article.
type WorldDesigner struct {
	text       llm.TextGenerator
	imageModel string
	log        *logger.Logger
}

// NewWorldDesigner returns a designer. imageModel is recorded in proposed
// configs.
func NewWorldDesigner(text llm.TextGenerator, imageModel string, log *logger.Logger) *WorldDesigner {
	return &WorldDesigner{text: text, imageModel: imageModel, log: log}
}

// Design asks for a world design in one structured call. The returned name
// is directory safe.
func (d *WorldDesigner) Design(ctx context.Context, idea string) (*types.WorldDesign, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, fmt.Errorf("%w: world idea is empty", storage.ErrInvalidInput)
	}

	var design types.WorldDesign
	if err := d.text.GenerateStructured(ctx, llm.TextRequest{
		System: designerSystemPrompt,
		Prompt: idea,
	}, designSchema, &design); err != nil {
		return nil, fmt.Errorf("design world: %w", err)
	}

	design.Name = SanitizeWorldName(design.Name)
	design.LLMModel = d.text.GetModel()
	design.ImageModel = d.imageModel
	design.SeedArticleTitle = NormalizeTitle(design.SeedArticleTitle)
	design.WorldConfig = design.WorldConfig.WithDefaults()

	d.log.Info("world designed", "name", design.Name, "seed", design.SeedArticleTitle)
	return &design, nil
}

// SanitizeWorldName reduces name to letters, digits, hyphens and
// underscores; runs of anything else become one hyphen.
func SanitizeWorldName(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			hyphen = false
		case !hyphen && b.Len() > 0:
			b.WriteByte('-')
			hyphen = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 64 {
		out = strings.TrimRight(out[:64], "-")
	}
	if out == "" {
		return "world"
	}
	return out
}
