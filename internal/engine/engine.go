package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// TracerName is the instrumentation scope of engine spans.
const TracerName = "lorewiki/engine"

// Options wires an Engine.
type Options struct {
	Text     llm.TextGenerator
	Images   llm.ImageGenerator // nil disables image synthesis
	Registry *world.Registry

	Engine     config.EngineConfig
	ImageQueue ImageQueueConfig
	ImageModel string

	Tracer trace.Tracer // defaults to the global provider
	Logger *logger.Logger
}

// Engine is the entry point used by the HTTP layer and the seed command.
// It opens worlds through the registry and dispatches to the pipeline,
// editor and designer.
type Engine struct {
	registry *world.Registry
	pipeline *Pipeline
	editor   *Editor
	designer *WorldDesigner
	images   *ImageQueue

	skipValidationDefault bool
}

// New assembles an Engine. Call Start before generating so image jobs run.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	aggregator := NewContextAggregator(opts.Engine.SimilarityTopK, opts.Engine.NeighborhoodHops)
	validator := NewValidator(opts.Text, log.With("component", "validator"))
	resolver := NewAliasResolver(opts.Text, aggregator, tracer, log.With("component", "resolver"))

	var images *ImageQueue
	if opts.Images != nil {
		images = NewImageQueue(opts.Images, opts.ImageQueue, log.With("component", "images"))
		images.SetTracer(tracer)
	}

	return &Engine{
		registry: opts.Registry,
		pipeline: NewPipeline(opts.Text, resolver, validator, images,
			PipelineConfig{MaxValidations: opts.Engine.MaxValidations}, tracer, log.With("component", "pipeline")),
		editor:                NewEditor(validator, aggregator, tracer, log.With("component", "editor")),
		designer:              NewWorldDesigner(opts.Text, opts.ImageModel, log.With("component", "designer")),
		images:                images,
		skipValidationDefault: opts.Engine.SkipValidationDefault,
	}
}

// Start launches background image workers.
func (e *Engine) Start(ctx context.Context) {
	if e.images != nil {
		e.images.Start(ctx)
	}
}

// Stop drains background work.
func (e *Engine) Stop(ctx context.Context) error {
	if e.images == nil {
		return nil
	}
	return e.images.Stop(ctx)
}

// Registry returns the world registry.
func (e *Engine) Registry() *world.Registry {
	return e.registry
}

// SkipValidationDefault is used when a request does not choose.
func (e *Engine) SkipValidationDefault() bool {
	return e.skipValidationDefault
}

// ImagesEnabled reports whether an image generator is configured.
func (e *Engine) ImagesEnabled() bool {
	return e.images != nil
}

// SubscribeImages registers fn for image job events. The returned function
// unsubscribes.
func (e *Engine) SubscribeImages(fn func(ImageEvent)) func() {
	if e.images == nil {
		return func() {}
	}
	return e.images.Subscribe(fn)
}

// Generate returns the article for req.Title in worldName, generating it
// when no existing article or alias matches.
func (e *Engine) Generate(ctx context.Context, worldName string, req GenerateRequest) (*GenerateResult, error) {
	h, err := e.registry.Open(ctx, worldName)
	if err != nil {
		return nil, err
	}
	return e.pipeline.Generate(ctx, h, req)
}

// Lookup returns an existing article by title or alias without generating.
func (e *Engine) Lookup(ctx context.Context, worldName, title string) (*types.Article, error) {
	h, err := e.registry.Open(ctx, worldName)
	if err != nil {
		return nil, err
	}
	title = NormalizeTitle(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	return lookupArticle(ctx, h, title)
}

// Edit validates and saves new content for an article.
func (e *Engine) Edit(ctx context.Context, worldName string, req EditRequest) (*EditResult, error) {
	h, err := e.registry.Open(ctx, worldName)
	if err != nil {
		return nil, err
	}
	return e.editor.Edit(ctx, h, req)
}

// Mentions lists the graph entities named in an article.
func (e *Engine) Mentions(ctx context.Context, worldName, title string) ([]Mention, error) {
	h, err := e.registry.Open(ctx, worldName)
	if err != nil {
		return nil, err
	}
	return Mentions(ctx, h, title)
}

// DesignWorld proposes a world configuration for idea.
func (e *Engine) DesignWorld(ctx context.Context, idea string) (*types.WorldDesign, error) {
	return e.designer.Design(ctx, idea)
}

// CreateWorldRequest creates a world and optionally its first article.
type CreateWorldRequest struct {
	Config types.WorldConfig

	SeedTitle        string
	SeedInstructions string
	SkipValidation   bool
}

// CreateWorldResult carries the created world and the seed article, if any.
type CreateWorldResult struct {
	Config types.WorldConfig
	Seed   *GenerateResult
}

// CreateWorld creates the world and generates the seed article. A failed
// seed leaves the world in place and is returned alongside the result.
func (e *Engine) CreateWorld(ctx context.Context, req CreateWorldRequest) (*CreateWorldResult, error) {
	h, err := e.registry.Create(ctx, req.Config)
	if err != nil {
		return nil, err
	}
	result := &CreateWorldResult{Config: h.Config()}

	if NormalizeTitle(req.SeedTitle) == "" {
		return result, nil
	}
	seed, err := e.pipeline.Generate(ctx, h, GenerateRequest{
		Title:          req.SeedTitle,
		Instructions:   req.SeedInstructions,
		SkipValidation: req.SkipValidation,
	})
	if err != nil {
		return result, fmt.Errorf("seed article for world %s: %w", h.Name, err)
	}
	result.Seed = seed
	return result, nil
}
