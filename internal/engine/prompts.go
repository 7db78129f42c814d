package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/pkg/types"
)

// Prompt builders and structured output schemas used by the pipeline. The
// schemas list every property as required, which OpenAI strict mode needs;
// optional values are declared nullable instead.

var entityTypeLabels = []string{"Person", "Location", "Organization", "Event", "Object", "Concept", "Technology"}

var planSchema = llm.Schema{
	Name: "article_plan",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "description": "One or two sentence summary of the article subject."},
			"outline": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"related_entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"type":     map[string]any{"type": "string", "enum": anySlice(entityTypeLabels)},
						"relation": map[string]any{"type": "string"},
					},
					"required": []any{"name", "type", "relation"},
				},
			},
			"image_prompt":       map[string]any{"type": "string", "description": "Detailed visual description for concept art of the subject."},
			"image_caption":      map[string]any{"type": "string"},
			"chronology_numeric": map[string]any{"type": []any{"number", "null"}, "description": "Sortable year of the subject, fractions for sub-year precision, negative before the epoch. Null if undated."},
			"chronology_display": map[string]any{"type": []any{"string", "null"}, "description": "The date as written in-world. Null if undated."},
			"timeline_event":     map[string]any{"type": []any{"string", "null"}, "description": "Short timeline entry if the subject is an event. Null otherwise."},
		},
		"required": []any{
			"summary", "outline", "related_entities", "image_prompt", "image_caption",
			"chronology_numeric", "chronology_display", "timeline_event",
		},
	},
}

var validationSchema = llm.Schema{
	Name: "consistency_check",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"is_valid": map[string]any{"type": "boolean"},
			"issues":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"is_valid", "issues"},
	},
}

var dedupSchema = llm.Schema{
	Name: "duplicate_check",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"is_duplicate":   map[string]any{"type": "boolean"},
			"existing_title": map[string]any{"type": []any{"string", "null"}},
		},
		"required": []any{"is_duplicate", "existing_title"},
	},
}

var designSchema = llm.Schema{
	Name: "world_design",
	Definition: map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":                     map[string]any{"type": "string", "description": "Directory safe name: letters, digits, hyphens, underscores."},
			"description":              map[string]any{"type": "string"},
			"system_prompt_planner":    map[string]any{"type": "string"},
			"system_prompt_writer":     map[string]any{"type": "string"},
			"system_prompt_image":      map[string]any{"type": "string"},
			"style":                    map[string]any{"type": "string"},
			"generate_images":          map[string]any{"type": "boolean"},
			"seed_article_title":       map[string]any{"type": "string"},
			"seed_article_description": map[string]any{"type": "string"},
		},
		"required": []any{
			"name", "description", "system_prompt_planner", "system_prompt_writer",
			"system_prompt_image", "style", "generate_images", "seed_article_title", "seed_article_description",
		},
	},
}

const (
	validatorSystemPrompt = "You are a strict consistency validator for a fictional world wiki."
	dedupSystemPrompt     = "You decide whether a wiki title names an entity that already has an article."
	designerSystemPrompt  = `You are a world-building expert. Turn the user's idea into a concrete configuration for an infinite wiki.

Produce:
1. A creative, directory-safe name.
2. A short description of the world.
3. Specialized system prompts for the planner (genre, tone and rules of the world), the writer (a writing style from inside the world's own point of view) and the image model (visual style).
4. A writing style line.
5. Whether articles should get images.
6. A seed article title: the most important founding event, place or concept.
7. A seed article description: a short paragraph on what the first article should cover.`
)

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func writeSection(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", heading, body)
}

func joinSnippets(snippets []string) string {
	return strings.Join(snippets, "\n\n---\n\n")
}

func buildPlanPrompt(cfg types.WorldConfig, title, instructions string, gathered *GatheredContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a wiki article about %q.\n\n", title)
	writeSection(&b, "World description", cfg.Description)
	writeSection(&b, "User instructions", instructions)
	writeSection(&b, "Context from similar articles", joinSnippets(gathered.Snippets()))
	writeSection(&b, "Context from the knowledge graph", gathered.Neighborhood)
	b.WriteString("Goal: create a consistent, interesting entry for this world. ")
	b.WriteString("Do not contradict the context above. ")
	fmt.Fprintf(&b, "Related entity types must be one of: %s. ", strings.Join(entityTypeLabels, ", "))
	b.WriteString("If the subject has a place in the world's chronology, give chronology_numeric, chronology_display and timeline_event; otherwise set them to null.")
	return b.String()
}

func buildWritePrompt(cfg types.WorldConfig, title string, plan *types.Plan, gathered *GatheredContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the full content for the wiki article %q based on this plan.\n\n", title)
	writeSection(&b, "Summary", plan.Summary)
	writeSection(&b, "Outline", "- "+strings.Join(plan.Outline, "\n- "))
	if plan.ChronologyDisplay != "" {
		writeSection(&b, "Date", plan.ChronologyDisplay)
	}
	writeSection(&b, "World description", cfg.Description)
	writeSection(&b, "Context", joinSnippets(gathered.Snippets()))
	writeSection(&b, "Style", cfg.Style)
	b.WriteString("Return only the article body.")
	return b.String()
}

func buildValidationPrompt(worldDescription string, snippets []string, oldContent, content string) string {
	var b strings.Builder
	b.WriteString("You are a consistency checker for a fictional world wiki.\n\n")
	writeSection(&b, "World description", worldDescription)
	writeSection(&b, "Existing knowledge", joinSnippets(snippets))
	writeSection(&b, "Original article content", oldContent)
	if oldContent != "" {
		writeSection(&b, "Proposed new content", content)
	} else {
		writeSection(&b, "Article content", content)
	}
	b.WriteString(`Task: check the content for consistency errors:
1. Contradictions with the world description.
2. Contradictions with existing knowledge.
3. Internal logic errors or timeline anachronisms.
Ignore style and grammar. Set is_valid to true when no major consistency error exists and list each specific issue otherwise.`)
	return b.String()
}

func buildRewritePrompt(cfg types.WorldConfig, title string, plan *types.Plan, content string, issues []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the wiki article %q so that it fixes the consistency issues listed below.\n\n", title)
	writeSection(&b, "Issues", "- "+strings.Join(issues, "\n- "))
	writeSection(&b, "Summary", plan.Summary)
	writeSection(&b, "World description", cfg.Description)
	writeSection(&b, "Current content", content)
	writeSection(&b, "Style", cfg.Style)
	b.WriteString("Return only the corrected article body.")
	return b.String()
}

func buildDedupPrompt(title string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requested title: %q\n\n", title)
	writeSection(&b, "Existing article titles", "- "+strings.Join(candidates, "\n- "))
	b.WriteString("Does the requested title refer to the same entity as one of the existing titles (a synonym, abbreviation, alternate spelling or alternate name)? ")
	b.WriteString("Answer is_duplicate true only if you are confident, and set existing_title to the exact existing title. Otherwise set is_duplicate false and existing_title null.")
	return b.String()
}

func buildImagePrompt(cfg types.WorldConfig, plan *types.Plan) string {
	prompt := strings.TrimSpace(plan.ImagePrompt)
	if style := strings.TrimSpace(cfg.SystemPromptImage); style != "" {
		prompt = style + "\n\n" + prompt
	}
	return prompt
}
