// Package server provides HTTP server initialization and lifecycle management
// for the lorewiki API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/lorewiki/internal/backup"
	"github.com/scrypster/lorewiki/internal/config"
	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/importer"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/web/handlers"
)

// Deps are the components the API serves.
type Deps struct {
	Engine   *engine.Engine
	Importer *importer.Importer
	Backups  *backup.Service // nil leaves the backup routes unregistered
	Logger   *logger.Logger
}

// NewHandler builds the full middleware-wrapped router. hub serves /ws and
// may be nil, in which case the route is not registered.
func NewHandler(cfg *config.Config, deps Deps, hub *handlers.WebSocketHub) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	imp := deps.Importer
	if imp == nil {
		imp = importer.New(log.With("component", "importer"))
	}
	registry := deps.Engine.Registry()

	worlds := handlers.NewWorldHandlers(deps.Engine, log)
	articles := handlers.NewArticleHandlers(deps.Engine, log)
	graphs := handlers.NewGraphHandlers(registry, log)
	images := handlers.NewImageHandlers(registry, log)
	imports := handlers.NewImportHandlers(registry, imp, log)
	system := handlers.NewSystemHandlers(cfg, deps.Engine.ImagesEnabled())

	// API routes (require auth in production mode)
	api := http.NewServeMux()
	api.HandleFunc("GET /api/config", system.GetConfig)

	api.HandleFunc("GET /api/worlds", worlds.ListWorlds)
	api.HandleFunc("POST /api/worlds", worlds.CreateWorld)
	api.HandleFunc("POST /api/worlds/design", worlds.DesignWorld)
	api.HandleFunc("GET /api/worlds/{world}", worlds.GetWorld)
	api.HandleFunc("PUT /api/worlds/{world}", worlds.UpdateWorld)

	api.HandleFunc("GET /api/worlds/{world}/articles", articles.ListArticles)
	api.HandleFunc("POST /api/worlds/{world}/articles", articles.GenerateArticle)
	api.HandleFunc("GET /api/worlds/{world}/articles/{title...}", articles.GetArticle)
	api.HandleFunc("PUT /api/worlds/{world}/articles/{title...}", articles.EditArticle)
	api.HandleFunc("GET /api/worlds/{world}/mentions", articles.GetMentions)

	api.HandleFunc("GET /api/worlds/{world}/graph", graphs.ExportGraph)
	api.HandleFunc("GET /api/worlds/{world}/timeline", graphs.GetTimeline)
	api.HandleFunc("GET /api/worlds/{world}/images/{file}", images.GetImage)

	api.HandleFunc("POST /api/worlds/{world}/import", imports.PostImport)
	api.HandleFunc("GET /api/import/{job_id}", imports.GetImportStatus)

	if deps.Backups != nil {
		backups := handlers.NewBackupHandlers(deps.Backups, log)
		api.HandleFunc("POST /api/worlds/{world}/backups", backups.PostBackup)
		api.HandleFunc("GET /api/worlds/{world}/backups", backups.ListBackups)
	}

	mux := http.NewServeMux()
	// Health endpoint: no auth, used by monitoring.
	mux.HandleFunc("GET /api/health", system.Health)
	mux.Handle("/api/", handlers.RequireAuth(api, cfg))
	if hub != nil {
		mux.Handle("/ws", hub)
	}

	var handler http.Handler = handlers.RateLimitMiddleware(mux, handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	return handlers.SecurityHeaders(handler)
}

// OriginPatterns are the browser origins allowed to open /ws.
func OriginPatterns(cfg *config.Config) []string {
	port := fmt.Sprint(cfg.Server.Port)
	patterns := []string{"localhost:" + port, "127.0.0.1:" + port}
	if h := cfg.Server.Host; h != "" && h != "localhost" && h != "127.0.0.1" && h != "0.0.0.0" {
		patterns = append(patterns, net.JoinHostPort(h, port))
	}
	return patterns
}

// Running is a started server.
type Running struct {
	// Addr is the address being listened on (useful with port 0).
	Addr string
	Hub  *handlers.WebSocketHub

	done chan struct{}
}

// Done is closed once the server has shut down and in-flight requests have
// returned or been cut off by the shutdown timeout.
func (r *Running) Done() <-chan struct{} {
	return r.done
}

// Start listens on the configured address and serves until ctx is done.
// Image job events from the engine are broadcast on /ws. Stores must stay
// open until Done is closed.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (*Running, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	hub := handlers.NewWebSocketHub(OriginPatterns(cfg), log.With("component", "websocket"))
	go hub.Run()
	unsubscribe := deps.Engine.SubscribeImages(func(ev engine.ImageEvent) {
		hub.Broadcast(ev)
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewHandler(cfg, deps, hub),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation runs several model calls inside one request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		unsubscribe()
		hub.Stop()
		return nil, fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	r := &Running{Addr: listener.Addr().String(), Hub: hub, done: make(chan struct{})}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}()

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	go func() {
		defer close(r.done)
		<-ctx.Done()
		unsubscribe()
		// Websocket connections are hijacked and not tracked by Shutdown.
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error, closing remaining connections", "error", err)
			_ = server.Close()
		}
	}()

	log.Info("http server listening", "addr", r.Addr)
	return r, nil
}
