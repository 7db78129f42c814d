package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/lorewiki/internal/app"
	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/server"
	"github.com/scrypster/lorewiki/internal/telemetry"
	"github.com/scrypster/lorewiki/web/handlers"
)

func main() {
	worldsPath := flag.String("worlds", "", "Worlds directory (overrides LOREWIKI_WORLDS_PATH)")
	port := flag.Int("port", 0, "Listen port (overrides LOREWIKI_PORT)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *worldsPath, *port)

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("lorewiki-web exited", "error", err)
	}
}

// applyFlags lets command line flags override the environment.
func applyFlags(cfg *config.Config, worldsPath string, port int) {
	if worldsPath != "" {
		cfg.Storage.WorldsPath = worldsPath
	}
	if port > 0 {
		cfg.Server.Port = port
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, handlers.Version, log.With("component", "telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("trace flush failed", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := a.Close(stopCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	if err := a.Registry.Watch(); err != nil {
		log.Warn("world config hot reload unavailable", "error", err)
	}

	if a.Backups != nil {
		go a.Backups.Run(ctx)
	}

	srv, err := server.Start(ctx, cfg, server.Deps{
		Engine:   a.Engine,
		Importer: a.Importer,
		Backups:  a.Backups,
		Logger:   log.With("component", "http"),
	})
	if err != nil {
		return err
	}
	log.Info("lorewiki running",
		"url", "http://"+srv.Addr,
		"storage", cfg.Storage.Engine,
		"worlds", cfg.Storage.WorldsPath,
		"images", a.Engine.ImagesEnabled(),
		"backups", a.Backups != nil,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gracefully")
	cancel()
	// Stores close in the deferred a.Close, after the last request returns.
	<-srv.Done()
	return nil
}
