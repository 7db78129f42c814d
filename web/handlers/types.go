package handlers

import (
	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CreateWorldRequest is the body of POST /api/worlds.
type CreateWorldRequest struct {
	types.WorldConfig

	SeedTitle        string `json:"seed_title,omitempty"`
	SeedInstructions string `json:"seed_instructions,omitempty"`
	SkipValidation   *bool  `json:"skip_validation,omitempty"`
}

// CreateWorldResponse is returned by POST /api/worlds. SeedError is set when
// the world was created but its seed article was not.
type CreateWorldResponse struct {
	World     types.WorldConfig `json:"world"`
	Seed      *ArticleResponse  `json:"seed,omitempty"`
	SeedError string            `json:"seed_error,omitempty"`
}

// DesignWorldRequest is the body of POST /api/worlds/design.
type DesignWorldRequest struct {
	Idea string `json:"idea"`
}

// GenerateArticleRequest is the body of POST /api/worlds/{world}/articles.
type GenerateArticleRequest struct {
	Title          string `json:"title"`
	Instructions   string `json:"instructions,omitempty"`
	SkipValidation *bool  `json:"skip_validation,omitempty"`
}

// ArticleResponse wraps an article with how the request resolved.
type ArticleResponse struct {
	Article        *types.Article `json:"article"`
	Resolution     string         `json:"resolution"`
	RequestedTitle string         `json:"requested_title"`
	Created        bool           `json:"created"`
	Validation     string         `json:"validation,omitempty"`
	Issues         []string       `json:"issues,omitempty"`
	ImageScheduled bool           `json:"image_scheduled"`
	GraphSynced    bool           `json:"graph_synced"`
	Warnings       []string       `json:"warnings,omitempty"`
}

func toArticleResponse(res *engine.GenerateResult) *ArticleResponse {
	out := &ArticleResponse{
		Article:        res.Article,
		Resolution:     string(res.Kind),
		RequestedTitle: res.RequestedTitle,
		Created:        res.Created(),
		Validation:     string(res.Outcome),
		Issues:         res.Issues,
		ImageScheduled: res.ImageScheduled,
		GraphSynced:    res.Synced(),
	}
	if res.SyncErr != nil {
		out.Warnings = []string{res.SyncErr.Error()}
	}
	return out
}

// EditArticleRequest is the body of PUT /api/worlds/{world}/articles/{title}.
type EditArticleRequest struct {
	Content string `json:"content"`
	Force   bool   `json:"force"`
}

// EditArticleResponse reports whether an edit was saved.
type EditArticleResponse struct {
	Article *types.Article `json:"article,omitempty"`
	Saved   bool           `json:"saved"`
	Issues  []string       `json:"issues,omitempty"`
}

// MentionsResponse lists the entities an article mentions.
type MentionsResponse struct {
	Title    string           `json:"title"`
	Mentions []engine.Mention `json:"mentions"`
}

// TimelineResponse is returned by the timeline endpoint.
type TimelineResponse struct {
	World  string                `json:"world"`
	Events []types.TimelineEvent `json:"events"`
}

// ImportRequest is the body of POST /api/worlds/{world}/import. Path is a
// directory on the server's filesystem.
type ImportRequest struct {
	Path      string `json:"path"`
	Overwrite bool   `json:"overwrite"`
}

// ImportJobResponse is returned when an import starts.
type ImportJobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// MaskAPIKey masks an API key for safe display.
// Shows first 7 chars and last 4 chars, hides the middle.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 12 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
