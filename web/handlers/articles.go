package handlers

import (
	"net/http"

	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/logger"
)

// ArticleHandlers serves article generation, lookup and edits.
type ArticleHandlers struct {
	engine *engine.Engine
	log    *logger.Logger
}

// NewArticleHandlers creates article handlers.
func NewArticleHandlers(e *engine.Engine, log *logger.Logger) *ArticleHandlers {
	return &ArticleHandlers{engine: e, log: log}
}

// ListArticles handles GET /api/worlds/{world}/articles.
func (h *ArticleHandlers) ListArticles(w http.ResponseWriter, r *http.Request) {
	wh, err := h.engine.Registry().Open(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to open world", err)
		return
	}
	items, err := wh.Store.ListArticles(r.Context())
	if err != nil {
		respondDomainError(w, h.log, "failed to list articles", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"world":    wh.Name,
		"articles": items,
		"total":    len(items),
	})
}

// GenerateArticle handles POST /api/worlds/{world}/articles. An existing
// article or alias is returned with 200; a generated one with 201.
func (h *ArticleHandlers) GenerateArticle(w http.ResponseWriter, r *http.Request) {
	var req GenerateArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.engine.Generate(r.Context(), r.PathValue("world"), engine.GenerateRequest{
		Title:          req.Title,
		Instructions:   req.Instructions,
		SkipValidation: skipValidation(req.SkipValidation, h.engine.SkipValidationDefault()),
	})
	if err != nil {
		respondDomainError(w, h.log, "failed to generate article", err)
		return
	}

	status := http.StatusOK
	if res.Created() {
		status = http.StatusCreated
	}
	respondJSON(w, status, toArticleResponse(res))
}

// GetArticle handles GET /api/worlds/{world}/articles/{title...}. Aliases
// resolve to their article; nothing is generated.
func (h *ArticleHandlers) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Lookup(r.Context(), r.PathValue("world"), r.PathValue("title"))
	if err != nil {
		respondDomainError(w, h.log, "article not available", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// EditArticle handles PUT /api/worlds/{world}/articles/{title...}. Content
// that fails the consistency check is rejected with 422 and the issues.
func (h *ArticleHandlers) EditArticle(w http.ResponseWriter, r *http.Request) {
	var req EditArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.engine.Edit(r.Context(), r.PathValue("world"), engine.EditRequest{
		Title:   r.PathValue("title"),
		Content: req.Content,
		Force:   req.Force,
	})
	if err != nil {
		respondDomainError(w, h.log, "failed to edit article", err)
		return
	}

	status := http.StatusOK
	if !res.Saved {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, EditArticleResponse{Article: res.Article, Saved: res.Saved, Issues: res.Issues})
}

// GetMentions handles GET /api/worlds/{world}/mentions?title=...
func (h *ArticleHandlers) GetMentions(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	mentions, err := h.engine.Mentions(r.Context(), r.PathValue("world"), title)
	if err != nil {
		respondDomainError(w, h.log, "failed to scan mentions", err)
		return
	}
	if mentions == nil {
		mentions = []engine.Mention{}
	}
	respondJSON(w, http.StatusOK, MentionsResponse{Title: title, Mentions: mentions})
}
