package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// DefaultRelation labels related-entity edges the planner left unlabelled.
const DefaultRelation = "related_to"

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	// MaxValidations bounds consistency checks per generation. The rewrite
	// generator runs at most MaxValidations-1 times.
	MaxValidations int

	// PostPersistTimeout bounds the graph, index and image work that follows
	// a committed article. That work is detached from the caller's context.
	PostPersistTimeout time.Duration
}

// DefaultPipelineConfig returns the production defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{MaxValidations: 2, PostPersistTimeout: 2 * time.Minute}
}

// GenerateRequest asks for the article of a title.
type GenerateRequest struct {
	Title string

	// Instructions is optional user guidance included in the plan prompt.
	Instructions string

	SkipValidation bool
}

// GenerateResult is what Generate produced or found.
type GenerateResult struct {
	Article *types.Article

	// Kind is ResolvedNew when this call created the article.
	Kind ResolutionKind

	// RequestedTitle is the normalized title that was asked for.
	RequestedTitle string

	// Outcome and Issues describe validation of a created article.
	Outcome ValidationOutcome
	Issues  []string

	ImageScheduled bool

	// SyncErr is set when the article was committed but its graph node or
	// index entry could not be saved. A graph failure wraps
	// graph.ErrGraphPersistence.
	SyncErr error
}

// Created reports whether this call persisted a new article.
func (r *GenerateResult) Created() bool {
	return r.Kind == ResolvedNew
}

// Synced reports whether the graph and index agree with the article.
func (r *GenerateResult) Synced() bool {
	return r.SyncErr == nil
}

// Pipeline resolves a title and, when it is new, runs
// PLAN → WRITE → VALIDATE/REWRITE → PERSIST → POST-PERSIST.
type Pipeline struct {
	text      llm.TextGenerator
	resolver  *AliasResolver
	validator *Validator
	images    *ImageQueue
	locks     *keyedMutex
	config    PipelineConfig
	tracer    trace.Tracer
	log       *logger.Logger
	now       func() time.Time
}

// NewPipeline wires a pipeline. images may be nil, in which case no image
// jobs are scheduled.
func NewPipeline(text llm.TextGenerator, resolver *AliasResolver, validator *Validator, images *ImageQueue,
	config PipelineConfig, tracer trace.Tracer, log *logger.Logger) *Pipeline {
	if config.MaxValidations < 1 {
		config.MaxValidations = DefaultPipelineConfig().MaxValidations
	}
	if config.PostPersistTimeout <= 0 {
		config.PostPersistTimeout = DefaultPipelineConfig().PostPersistTimeout
	}
	return &Pipeline{
		text:      text,
		resolver:  resolver,
		validator: validator,
		images:    images,
		locks:     newKeyedMutex(),
		config:    config,
		tracer:    tracer,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate returns the article for req.Title in world h, generating it if
// no existing article matches. Requests for the same title in the same
// world are serialized, so a title is generated at most once.
func (p *Pipeline) Generate(ctx context.Context, h *world.Handle, req GenerateRequest) (*GenerateResult, error) {
	title := NormalizeTitle(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	ctx, span := p.tracer.Start(ctx, "engine.generate", trace.WithAttributes(
		attribute.String("world", h.Name),
		attribute.String("title", title),
		attribute.Bool("skip_validation", req.SkipValidation),
	))
	defer span.End()

	unlock, err := p.locks.Lock(ctx, lockKey(h.Name, title))
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := p.resolver.Resolve(ctx, h, title)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		return nil, err
	}
	if res.Kind != ResolvedNew {
		return &GenerateResult{Article: res.Article, Kind: res.Kind, RequestedTitle: title}, nil
	}

	result, err := p.create(ctx, h, title, req, res.Context)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("created", result.Created()),
		attribute.String("outcome", string(result.Outcome)),
		attribute.Bool("synced", result.Synced()),
	)
	return result, nil
}

func (p *Pipeline) create(ctx context.Context, h *world.Handle, title string, req GenerateRequest, gathered *GatheredContext) (*GenerateResult, error) {
	cfg := h.Config()
	if gathered == nil {
		gathered = &GatheredContext{}
	}

	plan, err := p.plan(ctx, cfg, title, req.Instructions, gathered)
	if err != nil {
		return nil, err
	}

	content, err := p.write(ctx, cfg, title, plan, gathered)
	if err != nil {
		return nil, err
	}

	outcome := loopResult{Content: content, Outcome: OutcomeSkipped}
	if !req.SkipValidation {
		outcome = p.validate(ctx, cfg, title, plan, gathered, content)
	}

	article := &types.Article{
		ID:                uuid.NewString(),
		World:             h.Name,
		Title:             title,
		Summary:           plan.Summary,
		Content:           outcome.Content,
		ChronologyDisplay: plan.ChronologyDisplay,
		RelatedEntities:   plan.RelatedEntities,
		CreatedAt:         p.now(),
	}
	article.UpdatedAt = article.CreatedAt

	if err := h.Store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Another writer got there first; their article stands.
			winner, getErr := h.Store.GetArticle(ctx, title)
			if getErr != nil {
				return nil, fmt.Errorf("load existing article %q: %w", title, getErr)
			}
			p.log.Info("article created concurrently, returning existing", "world", h.Name, "title", title)
			return &GenerateResult{Article: winner, Kind: ResolvedCanonical, RequestedTitle: title}, nil
		}
		return nil, fmt.Errorf("persist article %q: %w", title, err)
	}
	p.log.Info("article created", "world", h.Name, "title", title, "id", article.ID,
		"outcome", outcome.Outcome, "validations", outcome.Validations, "rewrites", outcome.Rewrites)

	result := &GenerateResult{
		Article:        article,
		Kind:           ResolvedNew,
		RequestedTitle: title,
		Outcome:        outcome.Outcome,
		Issues:         outcome.Issues,
	}
	result.ImageScheduled, result.SyncErr = p.postPersist(ctx, h, cfg, article, plan)
	return result, nil
}

func (p *Pipeline) plan(ctx context.Context, cfg types.WorldConfig, title, instructions string, gathered *GatheredContext) (*types.Plan, error) {
	ctx, span := p.tracer.Start(ctx, "engine.plan")
	defer span.End()

	var plan types.Plan
	err := p.text.GenerateStructured(ctx, llm.TextRequest{
		System: cfg.SystemPromptPlanner,
		Prompt: buildPlanPrompt(cfg, title, instructions, gathered),
		Model:  cfg.LLMModel,
	}, planSchema, &plan)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w for %q: %w", ErrPlanGeneration, title, err)
	}
	return &plan, nil
}

func (p *Pipeline) write(ctx context.Context, cfg types.WorldConfig, title string, plan *types.Plan, gathered *GatheredContext) (string, error) {
	ctx, span := p.tracer.Start(ctx, "engine.write")
	defer span.End()

	content, err := p.text.GenerateText(ctx, llm.TextRequest{
		System: cfg.SystemPromptWriter,
		Prompt: buildWritePrompt(cfg, title, plan, gathered),
		Model:  cfg.LLMModel,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w for %q: %w", ErrWriteGeneration, title, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w for %q: empty content", ErrWriteGeneration, title)
	}
	return content, nil
}

func (p *Pipeline) validate(ctx context.Context, cfg types.WorldConfig, title string, plan *types.Plan, gathered *GatheredContext, content string) loopResult {
	ctx, span := p.tracer.Start(ctx, "engine.validate")
	defer span.End()

	loop := &validationLoop{
		maxValidations: p.config.MaxValidations,
		validate: func(ctx context.Context, content string) types.ValidationResult {
			return p.validator.Check(ctx, ValidationRequest{
				WorldDescription: cfg.Description,
				Snippets:         gathered.Snippets(),
				Content:          content,
				Model:            cfg.LLMModel,
			})
		},
		rewrite: func(ctx context.Context, content string, issues []string) (string, error) {
			return p.text.GenerateText(ctx, llm.TextRequest{
				System: cfg.SystemPromptWriter,
				Prompt: buildRewritePrompt(cfg, title, plan, content, issues),
				Model:  cfg.LLMModel,
			})
		},
		log: p.log.With("title", title),
	}
	res := loop.run(ctx, content)
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("validations", res.Validations),
		attribute.Int("rewrites", res.Rewrites),
	)
	return res
}

// postPersist folds the new article into the index and graph and schedules
// its image. It runs on a context detached from the caller so a dropped
// request cannot leave a committed article without its graph node. Index and
// graph failures are returned; the article stays committed.
func (p *Pipeline) postPersist(ctx context.Context, h *world.Handle, cfg types.WorldConfig, article *types.Article, plan *types.Plan) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.PostPersistTimeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "engine.post_persist")
	defer span.End()

	var errs []error
	if err := h.Store.IndexArticle(ctx, article); err != nil {
		span.RecordError(err)
		p.log.Warn("similarity index update failed", "world", h.Name, "title", article.Title, "error", err)
		errs = append(errs, fmt.Errorf("index article %q: %w", article.Title, err))
	}

	if err := h.Graph.Update(ctx, func(g *graph.Graph) error {
		return ApplyPlan(g, article.Title, plan)
	}); err != nil {
		span.RecordError(err)
		p.log.Error("graph update failed, article has no graph node", "world", h.Name, "title", article.Title, "error", err)
		if !errors.Is(err, graph.ErrGraphPersistence) {
			err = fmt.Errorf("%w: %w", graph.ErrGraphPersistence, err)
		}
		errs = append(errs, fmt.Errorf("graph update for %q: %w", article.Title, err))
	}
	syncErr := errors.Join(errs...)

	if !cfg.GenerateImages || p.images == nil || strings.TrimSpace(plan.ImagePrompt) == "" {
		return false, syncErr
	}
	err := p.images.Enqueue(&ImageJob{
		World:     h,
		ArticleID: article.ID,
		Title:     article.Title,
		Prompt:    buildImagePrompt(cfg, plan),
		Caption:   plan.ImageCaption,
		Model:     cfg.ImageModel,
	})
	if err != nil {
		p.log.Warn("image scheduling failed", "world", h.Name, "title", article.Title, "error", err)
		return false, syncErr
	}
	return true, syncErr
}

// ApplyPlan merges the article node for title and its related entities into
// g. Chronology from the plan lands on the article node itself.
func ApplyPlan(g *graph.Graph, title string, plan *types.Plan) error {
	attrs := types.NodeAttributes{Description: plan.Summary}
	if plan.HasTimelineEntry() {
		attrs = types.NodeAttributes{
			Description: plan.TimelineEvent,
			YearNumeric: types.Year(*plan.ChronologyNumeric),
			DisplayDate: plan.ChronologyDisplay,
		}
	}
	if err := g.UpsertEntity(title, types.NodeTypeArticle, attrs, true); err != nil {
		return err
	}

	for _, rel := range plan.RelatedEntities {
		name := NormalizeTitle(rel.Name)
		if target, ok := g.AliasTarget(name); ok {
			// Alias nodes keep their single is_alias_of edge.
			name = target
		}
		if name == "" || name == title {
			continue
		}
		if err := g.UpsertEntity(name, entityType(rel.Type), types.NodeAttributes{}, false); err != nil {
			return err
		}
		if e, ok := g.Edge(title, name); ok && e.Relation == types.RelationAliasOf {
			continue
		}
		relation := strings.TrimSpace(rel.Relation)
		if relation == "" {
			relation = DefaultRelation
		}
		if err := g.UpsertRelationship(title, name, relation); err != nil {
			return err
		}
	}
	return nil
}

// entityType maps a planner label to a node type. Structural types are
// reserved for the pipeline itself.
func entityType(label string) types.NodeType {
	t := types.ParseNodeType(label)
	switch t {
	case types.NodeTypeArticle, types.NodeTypeAlias, types.NodeTypePlaceholder:
		return types.NodeTypeConcept
	}
	return t
}

func lockKey(worldName, title string) string {
	return worldName + "\x00" + foldTitle(title)
}
