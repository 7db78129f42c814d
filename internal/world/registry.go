// Package world manages worlds: their directories, world.yaml settings and
// the lifecycle of the per-world resources (stores, graph manager,
// timeline) that every other component is handed explicitly.
package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/timeline"
	"github.com/scrypster/lorewiki/pkg/types"
)

var (
	// ErrWorldNotFound indicates that no world with the given name exists.
	ErrWorldNotFound = errors.New("world not found")

	// ErrWorldExists indicates that a world with the given name already exists.
	ErrWorldExists = errors.New("world already exists")

	// ErrInvalidWorldName indicates a name that cannot be used as a directory.
	ErrInvalidWorldName = errors.New("invalid world name")
)

const (
	// ImagesDir is the directory inside a world holding generated images.
	ImagesDir = "images"

	// LegacyGraphFile is the node-link graph file written by older releases.
	LegacyGraphFile = "wiki_graph.json"
)

var worldNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,63}$`)

// ValidateName reports whether name is usable as a world name.
func ValidateName(name string) error {
	if !worldNamePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidWorldName, name)
	}
	return nil
}

// Handle bundles the open resources of one world.
type Handle struct {
	Name      string
	Dir       string
	ImagesDir string

	Store    storage.WorldStore
	Graph    *graph.Manager
	Timeline *timeline.Index

	config atomic.Pointer[types.WorldConfig]
}

// Config returns the current world settings.
func (h *Handle) Config() types.WorldConfig {
	return *h.config.Load()
}

func (h *Handle) setConfig(cfg types.WorldConfig) {
	h.config.Store(&cfg)
}

// NewHandle assembles a handle from already opened parts. Used by callers
// that manage the store themselves.
func NewHandle(name, dir string, store storage.WorldStore, g *graph.Manager, cfg types.WorldConfig) *Handle {
	h := &Handle{
		Name:      name,
		Dir:       dir,
		ImagesDir: filepath.Join(dir, ImagesDir),
		Store:     store,
		Graph:     g,
		Timeline:  timeline.New(g),
	}
	h.setConfig(cfg)
	return h
}

// Registry owns the handles of open worlds. Handles opened by the registry
// are closed by it; handles adopted from a caller are borrowed and left
// open.
type Registry struct {
	basePath    string
	openStores  StoreOpener
	graphConfig graph.ManagerConfig
	log         *logger.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	owned   map[string]bool
	watcher *ConfigWatcher
}

// NewRegistry creates a registry rooted at basePath, creating the directory
// if needed.
func NewRegistry(basePath string, openStores StoreOpener, log *logger.Logger) (*Registry, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		abs = basePath
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create worlds directory: %w", err)
	}
	return &Registry{
		basePath:    abs,
		openStores:  openStores,
		graphConfig: graph.DefaultManagerConfig(),
		log:         log,
		handles:     make(map[string]*Handle),
		owned:       make(map[string]bool),
	}, nil
}

// BasePath returns the directory holding every world.
func (r *Registry) BasePath() string {
	return r.basePath
}

// Dir returns the directory of world name.
func (r *Registry) Dir(name string) string {
	return filepath.Join(r.basePath, name)
}

// Exists reports whether a world directory exists.
func (r *Registry) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	info, err := os.Stat(r.Dir(name))
	return err == nil && info.IsDir()
}

// List returns the names of every world, sorted.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Create makes a new world directory with cfg as its world.yaml and opens
// it. Returns ErrWorldExists if the world is already present.
func (r *Registry) Create(ctx context.Context, cfg types.WorldConfig) (*Handle, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	dir := r.Dir(cfg.Name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrWorldExists, cfg.Name)
		}
		return nil, fmt.Errorf("create world %s: %w", cfg.Name, err)
	}
	if err := SaveConfig(dir, cfg.WithDefaults()); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	r.log.Info("world created", "world", cfg.Name)
	return r.Open(ctx, cfg.Name)
}

// Config returns the settings of world name without opening its stores.
func (r *Registry) Config(name string) (types.WorldConfig, error) {
	r.mu.Lock()
	h, ok := r.handles[name]
	r.mu.Unlock()
	if ok {
		return h.Config(), nil
	}
	if !r.Exists(name) {
		return types.WorldConfig{}, fmt.Errorf("%w: %s", ErrWorldNotFound, name)
	}
	return LoadConfig(r.Dir(name), name)
}

// UpdateConfig writes cfg as the settings of world name.
func (r *Registry) UpdateConfig(name string, cfg types.WorldConfig) error {
	if !r.Exists(name) {
		return fmt.Errorf("%w: %s", ErrWorldNotFound, name)
	}
	cfg.Name = name
	cfg = cfg.WithDefaults()
	if err := SaveConfig(r.Dir(name), cfg); err != nil {
		return err
	}
	r.mu.Lock()
	if h, ok := r.handles[name]; ok {
		h.setConfig(cfg)
	}
	r.mu.Unlock()
	return nil
}

// Open returns the handle of world name, opening its resources on first
// use. A legacy wiki_graph.json found in the world directory is imported
// into the snapshot store the first time the world is opened.
func (r *Registry) Open(ctx context.Context, name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		return h, nil
	}
	if !r.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, name)
	}

	dir := r.Dir(name)
	cfg, err := LoadConfig(dir, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, ImagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create images directory for %s: %w", name, err)
	}

	store, err := r.openStores(ctx, name, dir)
	if err != nil {
		return nil, fmt.Errorf("open stores for %s: %w", name, err)
	}

	g := graph.NewManager(name, store, r.log, r.graphConfig)
	if err := r.importLegacyGraph(ctx, dir, store, g); err != nil {
		_ = store.Close()
		return nil, err
	}

	h := NewHandle(name, dir, store, g, cfg)
	r.handles[name] = h
	r.owned[name] = true
	if r.watcher != nil {
		r.watcher.add(name, dir)
	}
	r.log.Debug("world opened", "world", name, "dir", dir)
	return h, nil
}

// Adopt registers a handle opened by the caller. The registry never closes
// adopted handles.
func (r *Registry) Adopt(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.Name] = h
	r.owned[h.Name] = false
}

// Release closes and forgets the handle of world name if the registry owns
// it. The next Open reopens the world.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok {
		return nil
	}
	delete(r.handles, name)
	owned := r.owned[name]
	delete(r.owned, name)
	if r.watcher != nil {
		r.watcher.remove(h.Dir)
	}
	if !owned {
		return nil
	}
	return h.Store.Close()
}

// Reload re-reads world.yaml for an open world.
func (r *Registry) Reload(name string) error {
	r.mu.Lock()
	h, ok := r.handles[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	cfg, err := LoadConfig(h.Dir, name)
	if err != nil {
		return err
	}
	h.setConfig(cfg)
	r.log.Info("world config reloaded", "world", name)
	return nil
}

// onConfigEvent reloads the settings of a changed world and releases the
// handle of a world whose directory is gone.
func (r *Registry) onConfigEvent(name string) {
	if !r.Exists(name) {
		if err := r.Release(name); err != nil {
			r.log.Warn("release of removed world failed", "world", name, "error", err)
			return
		}
		r.log.Info("world removed from disk, handle released", "world", name)
		return
	}
	if err := r.Reload(name); err != nil {
		r.log.Warn("world config reload failed", "world", name, "error", err)
	}
}

// Watch starts reloading world.yaml of open worlds whenever it changes on
// disk, and releases worlds whose directory is deleted. It is stopped by
// Close.
func (r *Registry) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return nil
	}

	w, err := NewConfigWatcher(r.onConfigEvent, r.log)
	if err != nil {
		return err
	}
	for name, h := range r.handles {
		w.add(name, h.Dir)
	}
	r.watcher = w
	return nil
}

// Close stops the watcher and closes every owned handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	// The watcher callback takes r.mu, so it is stopped unlocked.
	if w != nil {
		w.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, h := range r.handles {
		if r.owned[name] {
			if err := h.Store.Close(); err != nil {
				lastErr = fmt.Errorf("close world %s: %w", name, err)
			}
		}
	}
	r.handles = make(map[string]*Handle)
	r.owned = make(map[string]bool)
	return lastErr
}

func (r *Registry) importLegacyGraph(ctx context.Context, dir string, store storage.GraphSnapshotStore, g *graph.Manager) error {
	path := filepath.Join(dir, LegacyGraphFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy graph: %w", err)
	}

	if _, err := store.LoadSnapshot(ctx); err == nil {
		r.log.Warn("legacy graph ignored, world already has a snapshot", "world", g.World(), "path", path)
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check graph snapshot: %w", err)
	}

	if err := g.Import(ctx, data); err != nil {
		return fmt.Errorf("import legacy graph for %s: %w", g.World(), err)
	}
	if err := os.Rename(path, path+".migrated"); err != nil {
		r.log.Warn("legacy graph imported but not renamed", "world", g.World(), "error", err)
	}
	r.log.Info("legacy graph imported", "world", g.World())
	return nil
}
