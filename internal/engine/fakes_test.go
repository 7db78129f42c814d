package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/storage/sqlite"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

const testPlan = `{
  "summary": "A train crew that vanished between stations.",
  "outline": ["Origins", "Sightings"],
  "related_entities": [
    {"name": "Line 9", "type": "Location", "relation": "haunts"},
    {"name": "Transit Authority", "type": "organization", "relation": ""}
  ],
  "image_prompt": "a ghostly subway car at night",
  "image_caption": "The last car",
  "chronology_numeric": null,
  "chronology_display": null,
  "timeline_event": null
}`

const (
	verdictValid    = `{"is_valid": true, "issues": []}`
	verdictInvalid  = `{"is_valid": false, "issues": ["The crew cannot predate the railway."]}`
	verdictNoDup    = `{"is_duplicate": false, "existing_title": null}`
	rewriteMarker   = "Rewrite the wiki article"
	defaultContent  = "The Lost Commuters were the crew of the last train on Line 9."
	rewrittenPrefix = "Rewritten: "
)

var errScripted = errors.New("scripted failure")

// scriptedText is a TextGenerator answering from fixed scripts and counting
// calls per schema. Free-text calls are counted as "write" or "rewrite".
type scriptedText struct {
	mu    sync.Mutex
	calls map[string]int

	plan       string
	planErr    error
	planDelay  time.Duration
	content    string
	writeErr   error
	rewriteErr error

	// verdicts are returned in order; the last one repeats.
	verdicts    []string
	validateErr error

	dedup    string
	dedupErr error

	design string
}

func newScriptedText() *scriptedText {
	return &scriptedText{
		calls:    make(map[string]int),
		plan:     testPlan,
		content:  defaultContent,
		verdicts: []string{verdictValid},
		dedup:    verdictNoDup,
	}
}

func (s *scriptedText) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *scriptedText) GenerateText(ctx context.Context, req llm.TextRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(req.Prompt, rewriteMarker) {
		s.calls["rewrite"]++
		if s.rewriteErr != nil {
			return "", s.rewriteErr
		}
		return rewrittenPrefix + s.content, nil
	}
	s.calls["write"]++
	if s.writeErr != nil {
		return "", s.writeErr
	}
	return s.content, nil
}

func (s *scriptedText) GenerateStructured(ctx context.Context, req llm.TextRequest, schema llm.Schema, out any) error {
	s.mu.Lock()
	s.calls[schema.Name]++
	n := s.calls[schema.Name]

	var raw string
	var err error
	var delay time.Duration
	switch schema.Name {
	case planSchema.Name:
		raw, err, delay = s.plan, s.planErr, s.planDelay
	case validationSchema.Name:
		idx := n - 1
		if idx >= len(s.verdicts) {
			idx = len(s.verdicts) - 1
		}
		raw, err = s.verdicts[idx], s.validateErr
	case dedupSchema.Name:
		raw, err = s.dedup, s.dedupErr
	case designSchema.Name:
		raw = s.design
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return llm.DecodeStructured(raw, schema, out)
}

func (s *scriptedText) GetModel() string { return "scripted-model" }

// recordingImages is an ImageGenerator recording prompts. The first
// failures calls fail.
type recordingImages struct {
	mu       sync.Mutex
	prompts  []string
	failures int
}

func (r *recordingImages) GenerateImage(ctx context.Context, prompt, model string) (llm.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	if r.failures > 0 {
		r.failures--
		return llm.Image{}, llm.ErrGenerationUnavailable
	}
	return llm.Image{Bytes: []byte("\x89PNG fake"), MimeType: "image/png"}, nil
}

func (r *recordingImages) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

// fixedSimilarity overrides similarity results of a real store.
type fixedSimilarity struct {
	storage.WorldStore
	docs []storage.SimilarDocument
}

func (f fixedSimilarity) QuerySimilar(ctx context.Context, text string, topK int) ([]storage.SimilarDocument, error) {
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

var noopTracer = noop.NewTracerProvider().Tracer("")

// newTestWorld opens a world backed by a temporary SQLite database.
func newTestWorld(t *testing.T, cfg types.WorldConfig) *world.Handle {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewNop()

	store, err := sqlite.Open(context.Background(), filepath.Join(dir, world.DatabaseFile), sqlite.Options{World: cfg.Name, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	g := graph.NewManager(cfg.Name, store, log, graph.DefaultManagerConfig())
	return world.NewHandle(cfg.Name, dir, store, g, cfg.WithDefaults())
}

// withSimilarity returns a copy of h whose similarity index answers docs.
func withSimilarity(h *world.Handle, docs ...storage.SimilarDocument) *world.Handle {
	store := fixedSimilarity{WorldStore: h.Store, docs: docs}
	return world.NewHandle(h.Name, h.Dir, store, h.Graph, h.Config())
}

func testWorldConfig() types.WorldConfig {
	return types.WorldConfig{Name: "Metro", Description: "A haunted subway system in a rainy city."}
}

func newTestPipeline(text llm.TextGenerator, images *ImageQueue) *Pipeline {
	log := logger.NewNop()
	aggregator := NewContextAggregator(3, 1)
	return NewPipeline(text,
		NewAliasResolver(text, aggregator, noopTracer, log),
		NewValidator(text, log),
		images,
		DefaultPipelineConfig(),
		noopTracer,
		log,
	)
}

// seedArticle inserts an article and its graph node directly.
func seedArticle(t *testing.T, h *world.Handle, title, content string) *types.Article {
	t.Helper()
	ctx := context.Background()
	a := &types.Article{
		ID:        "id-" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		World:     h.Name,
		Title:     title,
		Summary:   "Summary of " + title,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.InsertArticle(ctx, a))
	require.NoError(t, h.Store.IndexArticle(ctx, a))
	require.NoError(t, h.Graph.UpsertEntity(ctx, title, types.NodeTypeArticle, types.NodeAttributes{}, true))
	return a
}

func articleCount(t *testing.T, h *world.Handle) int {
	t.Helper()
	titles, err := h.Store.ListTitles(context.Background())
	require.NoError(t, err)
	return len(titles)
}
