package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// EditRequest replaces the content of an existing article.
type EditRequest struct {
	Title   string
	Content string

	// Force saves without a consistency check.
	Force bool
}

// EditResult reports whether the edit was saved. Issues lists the checker's
// objections when it was not, or the unavailability warning.
type EditResult struct {
	Article *types.Article
	Saved   bool
	Issues  []string
}

// Editor applies user edits to articles, checking them against the world
// unless forced.
type Editor struct {
	validator  *Validator
	aggregator *ContextAggregator
	locks      *keyedMutex
	tracer     trace.Tracer
	log        *logger.Logger
}

// NewEditor returns an editor.
func NewEditor(validator *Validator, aggregator *ContextAggregator, tracer trace.Tracer, log *logger.Logger) *Editor {
	return &Editor{
		validator:  validator,
		aggregator: aggregator,
		locks:      newKeyedMutex(),
		tracer:     tracer,
		log:        log,
	}
}

// Edit validates and saves new content for the article named by req.Title,
// following an alias if needed. Returns storage.ErrNotFound when no article
// matches.
func (e *Editor) Edit(ctx context.Context, h *world.Handle, req EditRequest) (*EditResult, error) {
	title := NormalizeTitle(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is empty", storage.ErrInvalidInput)
	}

	ctx, span := e.tracer.Start(ctx, "engine.edit", trace.WithAttributes(
		attribute.String("world", h.Name),
		attribute.String("title", title),
		attribute.Bool("force", req.Force),
	))
	defer span.End()

	unlock, err := e.locks.Lock(ctx, lockKey(h.Name, title))
	if err != nil {
		return nil, err
	}
	defer unlock()

	article, err := lookupArticle(ctx, h, title)
	if err != nil {
		return nil, err
	}

	var issues []string
	if !req.Force {
		verdict, err := e.check(ctx, h, article, content)
		if err != nil {
			return nil, err
		}
		if !verdict.IsValid {
			e.log.Info("edit rejected", "world", h.Name, "title", article.Title, "issues", len(verdict.Issues))
			return &EditResult{Article: article, Saved: false, Issues: verdict.Issues}, nil
		}
		issues = verdict.Issues
	}

	updated, err := h.Store.UpdateArticle(ctx, article.ID, types.ArticleUpdate{Content: &content})
	if err != nil {
		return nil, fmt.Errorf("save edit of %q: %w", article.Title, err)
	}
	if err := h.Store.IndexArticle(ctx, updated); err != nil {
		e.log.Warn("similarity index update failed", "world", h.Name, "title", updated.Title, "error", err)
	}
	e.log.Info("article edited", "world", h.Name, "title", updated.Title, "forced", req.Force)
	return &EditResult{Article: updated, Saved: true, Issues: issues}, nil
}

func (e *Editor) check(ctx context.Context, h *world.Handle, article *types.Article, content string) (types.ValidationResult, error) {
	docs, err := e.aggregator.Similar(ctx, h, content)
	if err != nil {
		return types.ValidationResult{}, err
	}
	snippets := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.ArticleID == article.ID {
			continue
		}
		snippets = append(snippets, d.Content)
	}

	cfg := h.Config()
	return e.validator.Check(ctx, ValidationRequest{
		WorldDescription: cfg.Description,
		Snippets:         snippets,
		OldContent:       article.Content,
		Content:          content,
		Model:            cfg.LLMModel,
	}), nil
}

// lookupArticle finds the article for title by exact match or alias edge.
// It never generates and never calls the text generator.
func lookupArticle(ctx context.Context, h *world.Handle, title string) (*types.Article, error) {
	article, err := h.Store.GetArticle(ctx, title)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return article, err
	}

	target, ok, aliasErr := h.Graph.AliasTarget(ctx, title)
	if aliasErr != nil {
		return nil, aliasErr
	}
	if !ok {
		return nil, err
	}
	article, err = h.Store.GetArticle(ctx, target)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &InconsistencyError{World: h.Name, Alias: title, Target: target}
	}
	return article, err
}
