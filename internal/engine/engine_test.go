package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

func newTestEngine(t *testing.T, text *scriptedText, images *recordingImages) *Engine {
	t.Helper()
	log := logger.NewNop()
	registry, err := world.NewRegistry(t.TempDir(), world.SQLiteStores(nil, log), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	opts := Options{
		Text:     text,
		Registry: registry,
		Engine: config.EngineConfig{
			MaxValidations:        2,
			SimilarityTopK:        3,
			NeighborhoodHops:      1,
			SkipValidationDefault: true,
		},
		ImageQueue: ImageQueueConfig{Workers: 1, BaseBackoff: time.Millisecond},
		ImageModel: "image-model",
		Tracer:     noopTracer,
		Logger:     log,
	}
	if images != nil {
		opts.Images = images
	}
	e := New(opts)
	e.Start(context.Background())
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e
}

func TestEngine_CreateWorldWithSeed(t *testing.T) {
	ctx := context.Background()
	text := newScriptedText()
	e := newTestEngine(t, text, nil)

	res, err := e.CreateWorld(ctx, CreateWorldRequest{
		Config:           types.WorldConfig{Name: "Metro", Description: "A haunted subway."},
		SeedTitle:        "The Lost Commuters",
		SeedInstructions: "Introduce the crew.",
		SkipValidation:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Metro", res.Config.Name)
	require.NotNil(t, res.Seed)
	assert.True(t, res.Seed.Created())

	a, err := e.Lookup(ctx, "Metro", "The Lost Commuters")
	require.NoError(t, err)
	assert.Equal(t, res.Seed.Article.ID, a.ID)

	_, err = e.CreateWorld(ctx, CreateWorldRequest{Config: types.WorldConfig{Name: "Metro"}})
	assert.ErrorIs(t, err, world.ErrWorldExists)
}

func TestEngine_CreateWorldSeedFailureKeepsWorld(t *testing.T) {
	ctx := context.Background()
	text := newScriptedText()
	text.planErr = errScripted
	e := newTestEngine(t, text, nil)

	res, err := e.CreateWorld(ctx, CreateWorldRequest{Config: types.WorldConfig{Name: "Metro"}, SeedTitle: "Origins"})
	assert.ErrorIs(t, err, ErrPlanGeneration)
	require.NotNil(t, res)
	assert.Nil(t, res.Seed)
	assert.True(t, e.Registry().Exists("Metro"))
}

func TestEngine_GenerateLookupEditMentions(t *testing.T) {
	ctx := context.Background()
	text := newScriptedText()
	e := newTestEngine(t, text, nil)
	_, err := e.CreateWorld(ctx, CreateWorldRequest{Config: types.WorldConfig{Name: "Metro"}})
	require.NoError(t, err)

	_, err = e.Lookup(ctx, "Metro", "The Lost Commuters")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	gen, err := e.Generate(ctx, "Metro", GenerateRequest{Title: "The Lost Commuters", SkipValidation: true})
	require.NoError(t, err)
	assert.True(t, gen.Created())

	redirect, err := e.Generate(ctx, "Metro", GenerateRequest{Title: "lost commuters"})
	require.NoError(t, err)
	assert.Equal(t, ResolvedRedirect, redirect.Kind)

	a, err := e.Lookup(ctx, "Metro", "lost commuters")
	require.NoError(t, err)
	assert.Equal(t, gen.Article.ID, a.ID)

	edit, err := e.Edit(ctx, "Metro", EditRequest{Title: "The Lost Commuters", Content: "They ride Line 9 forever.", Force: true})
	require.NoError(t, err)
	assert.True(t, edit.Saved)

	mentions, err := e.Mentions(ctx, "Metro", "The Lost Commuters")
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "Line 9", mentions[0].Name)
	assert.False(t, mentions[0].Exists)

	_, err = e.Generate(ctx, "Atlantis", GenerateRequest{Title: "x"})
	assert.ErrorIs(t, err, world.ErrWorldNotFound)
}

func TestEngine_ImageEvents(t *testing.T) {
	ctx := context.Background()
	images := &recordingImages{}
	e := newTestEngine(t, newScriptedText(), images)
	require.True(t, e.ImagesEnabled())

	events := make(chan ImageEvent, 8)
	unsubscribe := e.SubscribeImages(func(ev ImageEvent) { events <- ev })
	defer unsubscribe()

	_, err := e.CreateWorld(ctx, CreateWorldRequest{Config: types.WorldConfig{Name: "Metro", GenerateImages: true}})
	require.NoError(t, err)
	gen, err := e.Generate(ctx, "Metro", GenerateRequest{Title: "The Last Car", SkipValidation: true})
	require.NoError(t, err)
	require.True(t, gen.ImageScheduled)

	done := waitForStatus(t, events, ImageCompleted)
	assert.Equal(t, gen.Article.ID, done.ArticleID)
}

func TestEngine_WithoutImages(t *testing.T) {
	e := newTestEngine(t, newScriptedText(), nil)
	assert.False(t, e.ImagesEnabled())
	e.SubscribeImages(func(ImageEvent) {})()
	assert.True(t, e.SkipValidationDefault())
}
