// Package app assembles the lorewiki components from process configuration.
// Both binaries start here.
package app

import (
	"context"
	"fmt"

	"github.com/scrypster/lorewiki/internal/backup"
	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/importer"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/storage/postgres"
	"github.com/scrypster/lorewiki/internal/world"
)

// App holds the running components.
type App struct {
	Config   *config.Config
	Registry *world.Registry
	Engine   *engine.Engine
	Importer *importer.Importer
	Backups  *backup.Service // nil unless a backup directory is configured

	closers []func() error
	log     *logger.Logger
}

// New builds the model clients, the world registry and the engine. The
// engine is started and outlives ctx; call Close to drain it and release
// storage.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	text, err := llm.NewTextGenerator(cfg.LLM, log.With("component", "llm"))
	if err != nil {
		return nil, err
	}
	images, err := llm.NewImageGenerator(cfg, log.With("component", "images"))
	if err != nil {
		return nil, err
	}
	embeddings, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	var embedder storage.Embedder
	if embeddings != nil {
		embedder = embeddings
		log.Info("vector similarity enabled", "embedding_model", embeddings.GetModel())
	}

	opener, err := a.storeOpener(ctx, embedder)
	if err != nil {
		return nil, err
	}
	registry, err := world.NewRegistry(cfg.Storage.WorldsPath, opener, log.With("component", "registry"))
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.Registry = registry
	a.closers = append([]func() error{registry.Close}, a.closers...)

	opts := engine.Options{
		Text:     text,
		Registry: registry,
		Engine:   cfg.Engine,
		ImageQueue: engine.ImageQueueConfig{
			Workers:   cfg.Image.Workers,
			QueueSize: cfg.Image.QueueSize,
		},
		ImageModel: cfg.Image.Model,
		Logger:     log,
	}
	if images != nil {
		opts.Images = images
	} else {
		log.Info("image generation disabled: no image API key configured")
	}
	a.Engine = engine.New(opts)
	a.Engine.Start(ctx)
	a.Importer = importer.New(log.With("component", "importer"))

	if cfg.Backup.Dir != "" {
		svc, err := backup.NewService(registry, backup.ConfigFrom(cfg.Backup), log.With("component", "backup"))
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.Backups = svc
	}
	return a, nil
}

func (a *App) storeOpener(ctx context.Context, embedder storage.Embedder) (world.StoreOpener, error) {
	switch a.Config.Storage.Engine {
	case "postgres":
		pg, err := postgres.Open(ctx, a.Config.Storage.PostgresDSN, embedder, a.log.With("component", "postgres"))
		if err != nil {
			return nil, fmt.Errorf("open postgres %s: %w", world.RedactDSN(a.Config.Storage.PostgresDSN), err)
		}
		a.closers = append(a.closers, pg.Close)
		return world.PostgresStores(pg), nil
	case "sqlite", "":
		return world.SQLiteStores(embedder, a.log), nil
	}
	return nil, fmt.Errorf("unsupported storage engine: %q", a.Config.Storage.Engine)
}

// Close stops background image work and closes every world and store.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Engine != nil {
		if err := a.Engine.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeAll() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
