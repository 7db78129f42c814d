package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/pkg/types"
)

// ManagerConfig tunes snapshot persistence.
type ManagerConfig struct {
	// SaveAttempts is the number of times a snapshot save is tried before
	// the mutation is rolled back.
	SaveAttempts int

	// BaseBackoff is multiplied by attempt² between tries.
	BaseBackoff time.Duration
}

// DefaultManagerConfig returns the default persistence settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SaveAttempts: 3,
		BaseBackoff:  100 * time.Millisecond,
	}
}

// Manager is the single writer of one world's graph. The graph is loaded
// lazily from the snapshot store on first access. Every mutation works on a
// copy that only replaces the live graph after the snapshot holding it has
// been saved, so a failed save leaves memory and storage in agreement.
type Manager struct {
	world  string
	store  storage.GraphSnapshotStore
	log    *logger.Logger
	config ManagerConfig

	// mu serializes writers and the initial load. Readers use live without
	// locking; a published graph is never mutated.
	mu   sync.Mutex
	live atomic.Pointer[Graph]
}

// NewManager creates a manager for world backed by store.
func NewManager(world string, store storage.GraphSnapshotStore, log *logger.Logger, config ManagerConfig) *Manager {
	if config.SaveAttempts < 1 {
		config.SaveAttempts = 1
	}
	return &Manager{
		world:  world,
		store:  store,
		log:    log.With("world", world),
		config: config,
	}
}

// World returns the world this manager owns.
func (m *Manager) World() string {
	return m.world
}

// UpsertEntity creates or merges a single node and persists the graph.
// See Graph.UpsertEntity for the type rules.
func (m *Manager) UpsertEntity(ctx context.Context, name string, nodeType types.NodeType, attrs types.NodeAttributes, force bool) error {
	return m.Update(ctx, func(g *Graph) error {
		return g.UpsertEntity(name, nodeType, attrs, force)
	})
}

// UpsertRelationship creates or relabels the edge between source and target
// and persists the graph.
func (m *Manager) UpsertRelationship(ctx context.Context, source, target, relation string) error {
	return m.Update(ctx, func(g *Graph) error {
		return g.UpsertRelationship(source, target, relation)
	})
}

// Update applies fn to a copy of the graph and persists the result as one
// snapshot. If fn fails nothing changes. If the snapshot cannot be saved
// after the configured attempts the copy is discarded and an error wrapping
// ErrGraphPersistence is returned.
func (m *Manager) Update(ctx context.Context, fn func(g *Graph) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return err
	}

	next := m.live.Load().Clone()
	if err := fn(next); err != nil {
		return err
	}

	data, err := Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGraphPersistence, err)
	}
	if err := m.saveWithRetry(ctx, data); err != nil {
		m.log.Error("graph snapshot save failed, mutation rolled back", "error", err)
		return fmt.Errorf("%w: %v", ErrGraphPersistence, err)
	}

	m.live.Store(next)
	return nil
}

// Snapshot returns a copy of the current graph for read-only use.
func (m *Manager) Snapshot(ctx context.Context) (*Graph, error) {
	g, err := m.current(ctx)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// Node returns the named node.
func (m *Manager) Node(ctx context.Context, name string) (types.Node, bool, error) {
	var (
		node types.Node
		ok   bool
	)
	err := m.read(ctx, func(g *Graph) {
		node, ok = g.Node(name)
	})
	return node, ok, err
}

// AliasTarget returns the canonical title an Alias node points at.
func (m *Manager) AliasTarget(ctx context.Context, name string) (string, bool, error) {
	var (
		target string
		ok     bool
	)
	err := m.read(ctx, func(g *Graph) {
		target, ok = g.AliasTarget(name)
	})
	return target, ok, err
}

// Nodes returns every node in insertion order.
func (m *Manager) Nodes(ctx context.Context) ([]types.Node, error) {
	var nodes []types.Node
	err := m.read(ctx, func(g *Graph) {
		nodes = g.Nodes()
	})
	return nodes, err
}

// Neighborhood returns the subgraph within bounds of the seed names.
func (m *Manager) Neighborhood(ctx context.Context, seeds []string, bounds Bounds) (*Graph, error) {
	var sub *Graph
	err := m.read(ctx, func(g *Graph) {
		sub = g.Subgraph(seeds, bounds)
	})
	return sub, err
}

// Export returns the current graph as a node-link document.
func (m *Manager) Export(ctx context.Context) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if rerr := m.read(ctx, func(g *Graph) {
		data, err = Marshal(g)
	}); rerr != nil {
		return nil, rerr
	}
	return data, err
}

// Import replaces the graph with the decoded legacy or current document
// and persists it.
func (m *Manager) Import(ctx context.Context, data []byte) error {
	imported, err := Unmarshal(data)
	if err != nil {
		return err
	}
	return m.Update(ctx, func(g *Graph) error {
		*g = *imported
		return nil
	})
}

func (m *Manager) read(ctx context.Context, fn func(g *Graph)) error {
	g, err := m.current(ctx)
	if err != nil {
		return err
	}
	fn(g)
	return nil
}

// current returns the live graph, loading it if needed.
func (m *Manager) current(ctx context.Context) (*Graph, error) {
	if g := m.live.Load(); g != nil {
		return g, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}
	return m.live.Load(), nil
}

// loadLocked reads the snapshot on first use. Callers hold m.mu.
func (m *Manager) loadLocked(ctx context.Context) error {
	if m.live.Load() != nil {
		return nil
	}

	data, err := m.store.LoadSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		m.live.Store(New())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load graph snapshot for %s: %w", m.world, err)
	}

	g, err := Unmarshal(data)
	if err != nil {
		return fmt.Errorf("load graph snapshot for %s: %w", m.world, err)
	}
	m.live.Store(g)
	m.log.Debug("graph loaded", "nodes", g.Len())
	return nil
}

func (m *Manager) saveWithRetry(ctx context.Context, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < m.config.SaveAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * m.config.BaseBackoff
			m.log.Warn("retrying graph snapshot save", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%v (gave up: %w)", lastErr, ctx.Err())
			case <-time.After(backoff):
			}
		}
		if lastErr = m.store.SaveSnapshot(ctx, data); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
