package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// ResolutionKind says how a requested title was resolved.
type ResolutionKind string

const (
	// ResolvedCanonical means an article exists under exactly this title.
	ResolvedCanonical ResolutionKind = "canonical"

	// ResolvedRedirect means the title is an alias of an existing article.
	ResolvedRedirect ResolutionKind = "redirect"

	// ResolvedNew means nothing matched and the title may be generated.
	ResolvedNew ResolutionKind = "new"
)

// Resolution tier names, recorded for logs and traces.
const (
	TierAliasEdge = "alias_edge"
	TierExact     = "exact"
	TierHeuristic = "heuristic"
	TierSemantic  = "semantic"
)

// Resolution is the outcome of resolving a title.
type Resolution struct {
	Kind ResolutionKind

	// Title is the normalized requested title.
	Title string

	// Article is the resolved article; nil for ResolvedNew.
	Article *types.Article

	// Tier names the check that matched; empty for ResolvedNew.
	Tier string

	// Context is the context gathered for the semantic tier. It is reused by
	// generation when the title turns out to be new.
	Context *GatheredContext
}

// AliasResolver maps a requested title to an existing article or declares
// it new. Tiers run cheapest first and short-circuit; every alias found
// beyond the first tier is recorded in the graph so later lookups of the
// same title hit the alias tier.
type AliasResolver struct {
	text       llm.TextGenerator
	aggregator *ContextAggregator
	tracer     trace.Tracer
	log        *logger.Logger
}

// NewAliasResolver returns a resolver.
func NewAliasResolver(text llm.TextGenerator, aggregator *ContextAggregator, tracer trace.Tracer, log *logger.Logger) *AliasResolver {
	return &AliasResolver{text: text, aggregator: aggregator, tracer: tracer, log: log}
}

// Resolve resolves title within world h. title must already be normalized.
// A dangling alias or semantic match yields an *InconsistencyError.
func (r *AliasResolver) Resolve(ctx context.Context, h *world.Handle, title string) (*Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "engine.resolve", trace.WithAttributes(
		attribute.String("world", h.Name),
		attribute.String("title", title),
	))
	defer span.End()

	res, err := r.resolve(ctx, h, title)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("resolution", string(res.Kind)), attribute.String("tier", res.Tier))
	return res, nil
}

func (r *AliasResolver) resolve(ctx context.Context, h *world.Handle, title string) (*Resolution, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}

	// Alias edge.
	if target, ok, err := h.Graph.AliasTarget(ctx, title); err != nil {
		return nil, err
	} else if ok {
		article, err := h.Store.GetArticle(ctx, target)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &InconsistencyError{World: h.Name, Alias: title, Target: target}
		}
		if err != nil {
			return nil, err
		}
		return &Resolution{Kind: ResolvedRedirect, Title: title, Article: article, Tier: TierAliasEdge}, nil
	}

	// Exact title.
	article, err := h.Store.GetArticle(ctx, title)
	if err == nil {
		return &Resolution{Kind: ResolvedCanonical, Title: title, Article: article, Tier: TierExact}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Case and leading "the " insensitive match against every title.
	titles, err := h.Store.ListTitles(ctx)
	if err != nil {
		return nil, err
	}
	for _, canonical := range titles {
		if !heuristicMatch(title, canonical) {
			continue
		}
		return r.redirect(ctx, h, title, canonical, TierHeuristic)
	}

	// Semantic match, only when there is something to compare against.
	gathered, err := r.aggregator.Gather(ctx, h, title, title)
	if err != nil {
		return nil, err
	}
	if len(gathered.Similar) == 0 {
		return &Resolution{Kind: ResolvedNew, Title: title, Context: gathered}, nil
	}

	verdict, err := r.dedup(ctx, h, title, gathered)
	if err != nil {
		return nil, err
	}
	existing := strings.TrimSpace(verdict.ExistingTitle)
	if !verdict.IsDuplicate || existing == "" || existing == title {
		return &Resolution{Kind: ResolvedNew, Title: title, Context: gathered}, nil
	}
	return r.redirect(ctx, h, title, existing, TierSemantic)
}

// redirect verifies the canonical article and records title as its alias.
func (r *AliasResolver) redirect(ctx context.Context, h *world.Handle, title, canonical, tier string) (*Resolution, error) {
	article, err := h.Store.GetArticle(ctx, canonical)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &InconsistencyError{World: h.Name, Alias: title, Target: canonical}
	}
	if err != nil {
		return nil, err
	}

	if err := recordAlias(ctx, h.Graph, title, article.Title); err != nil {
		// The article is real; only the shortcut for next time is lost.
		r.log.Error("alias not recorded", "world", h.Name, "title", title, "target", article.Title, "error", err)
	} else {
		r.log.Info("alias recorded", "world", h.Name, "title", title, "target", article.Title, "tier", tier)
	}
	return &Resolution{Kind: ResolvedRedirect, Title: title, Article: article, Tier: tier}, nil
}

func (r *AliasResolver) dedup(ctx context.Context, h *world.Handle, title string, gathered *GatheredContext) (types.DedupVerdict, error) {
	var verdict types.DedupVerdict
	err := r.text.GenerateStructured(ctx, llm.TextRequest{
		System: dedupSystemPrompt,
		Prompt: buildDedupPrompt(title, uniqueStrings(gathered.Titles())),
		Model:  h.Config().LLMModel,
	}, dedupSchema, &verdict)
	if err != nil {
		return types.DedupVerdict{}, fmt.Errorf("duplicate check for %q: %w", title, err)
	}
	return verdict, nil
}

// recordAlias makes title an Alias node pointing at canonical, promoting
// any existing node of that name.
func recordAlias(ctx context.Context, g *graph.Manager, title, canonical string) error {
	return g.Update(ctx, func(gr *graph.Graph) error {
		if err := gr.UpsertEntity(canonical, types.NodeTypeArticle, types.NodeAttributes{}, true); err != nil {
			return err
		}
		if err := gr.UpsertEntity(title, types.NodeTypeAlias, types.NodeAttributes{}, true); err != nil {
			return err
		}
		return gr.UpsertRelationship(title, canonical, types.RelationAliasOf)
	})
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
