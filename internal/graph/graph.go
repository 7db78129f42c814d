// Package graph owns the knowledge graph of a world: typed entity nodes,
// single-relation undirected edges, the snapshot codec and the manager that
// serializes writers and persists every mutation.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/lorewiki/pkg/types"
)

var (
	// ErrGraphPersistence indicates that a mutation could not be saved. The
	// in-memory graph is rolled back to its previous state when returned.
	ErrGraphPersistence = errors.New("graph persistence failed")

	// ErrInvalidNode indicates an empty node name or unknown node type.
	ErrInvalidNode = errors.New("invalid graph node")
)

// Graph is an undirected graph keyed by node name. At most one edge exists
// per unordered pair of names. A Graph is not safe for concurrent mutation;
// Manager hands out copies and swaps them in under its lock.
type Graph struct {
	nodes map[string]*types.Node
	order []string
	edges map[[2]string]types.Edge
	adj   map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*types.Node),
		edges: make(map[[2]string]types.Edge),
		adj:   make(map[string]map[string]struct{}),
	}
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes: make(map[string]*types.Node, len(g.nodes)),
		order: make([]string, len(g.order)),
		edges: make(map[[2]string]types.Edge, len(g.edges)),
		adj:   make(map[string]map[string]struct{}, len(g.adj)),
	}
	copy(c.order, g.order)
	for name, n := range g.nodes {
		cp := *n
		cp.Attributes = types.NodeAttributes{}.Merge(n.Attributes)
		c.nodes[name] = &cp
	}
	for k, e := range g.edges {
		c.edges[k] = e
	}
	for name, set := range g.adj {
		cs := make(map[string]struct{}, len(set))
		for n := range set {
			cs[n] = struct{}{}
		}
		c.adj[name] = cs
	}
	return c
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// HasNode reports whether a node named name exists.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Node returns a copy of the named node.
func (g *Graph) Node(name string) (types.Node, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return types.Node{}, false
	}
	return *n, true
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []types.Node {
	out := make([]types.Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, *g.nodes[name])
	}
	return out
}

// Edges returns every edge ordered by pair key.
func (g *Graph) Edges() []types.Edge {
	keys := make([][2]string, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	out := make([]types.Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.edges[k])
	}
	return out
}

// Edge returns the edge between a and b in either orientation.
func (g *Graph) Edge(a, b string) (types.Edge, bool) {
	e, ok := g.edges[types.PairKey(a, b)]
	return e, ok
}

// Neighbors returns the sorted names adjacent to name.
func (g *Graph) Neighbors(name string) []string {
	set := g.adj[name]
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UpsertEntity creates the node or merges attrs into it. An existing node
// keeps its type unless force is set; Placeholder nodes always adopt the
// new type.
func (g *Graph) UpsertEntity(name string, nodeType types.NodeType, attrs types.NodeAttributes, force bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidNode)
	}
	if !nodeType.IsValid() {
		return fmt.Errorf("%w: unknown type %q for %q", ErrInvalidNode, nodeType, name)
	}

	n, ok := g.nodes[name]
	if !ok {
		g.addNode(&types.Node{Name: name, Type: nodeType, Attributes: types.NodeAttributes{}.Merge(attrs)})
		return nil
	}
	if force || n.Type == types.NodeTypePlaceholder {
		n.Type = nodeType
	}
	n.Attributes = n.Attributes.Merge(attrs)
	return nil
}

// UpsertRelationship sets the single edge between source and target to
// relation, replacing any previous label. Missing endpoints are created as
// Placeholder nodes.
func (g *Graph) UpsertRelationship(source, target, relation string) error {
	source, target = strings.TrimSpace(source), strings.TrimSpace(target)
	if source == "" || target == "" {
		return fmt.Errorf("%w: relationship endpoints must be named", ErrInvalidNode)
	}
	if source == target {
		return fmt.Errorf("%w: self relationship on %q", ErrInvalidNode, source)
	}
	for _, name := range []string{source, target} {
		if _, ok := g.nodes[name]; !ok {
			g.addNode(&types.Node{Name: name, Type: types.NodeTypePlaceholder})
		}
	}
	g.edges[types.PairKey(source, target)] = types.Edge{Source: source, Target: target, Relation: relation}
	g.link(source, target)
	return nil
}

// AliasTarget returns the node an Alias node points at through its
// is_alias_of edge. ok is false when name is not an Alias or has no such
// edge.
func (g *Graph) AliasTarget(name string) (target string, ok bool) {
	n, exists := g.nodes[name]
	if !exists || n.Type != types.NodeTypeAlias {
		return "", false
	}
	for _, other := range g.Neighbors(name) {
		e := g.edges[types.PairKey(name, other)]
		if e.Relation != types.RelationAliasOf {
			continue
		}
		// The alias is the source when the edge was written by the resolver;
		// an edge written the other way round still identifies the pair.
		return e.Other(name), true
	}
	return "", false
}

// Subgraph returns the nodes within hops of any seed, with every edge among
// them. Seeds missing from the graph are ignored.
func (g *Graph) Subgraph(seeds []string, bounds Bounds) *Graph {
	bounds.Normalize()
	checker := newBoundsChecker(bounds)

	type queueItem struct {
		name  string
		depth int
	}
	var queue []queueItem
	for _, s := range seeds {
		if g.HasNode(s) {
			queue = append(queue, queueItem{s, 0})
		}
	}

	visited := make(map[string]bool)
	for len(queue) > 0 && checker.canVisitNode() {
		current := queue[0]
		queue = queue[1:]
		if visited[current.name] {
			continue
		}
		visited[current.name] = true
		checker.recordNode()

		if current.depth >= bounds.MaxHops {
			continue
		}
		for _, n := range g.Neighbors(current.name) {
			if !visited[n] {
				queue = append(queue, queueItem{n, current.depth + 1})
			}
		}
	}

	sub := New()
	for _, name := range g.order {
		if visited[name] {
			sub.addNode(&types.Node{Name: name, Type: g.nodes[name].Type, Attributes: g.nodes[name].Attributes})
		}
	}
	for k, e := range g.edges {
		if visited[k[0]] && visited[k[1]] {
			sub.edges[k] = e
			sub.link(k[0], k[1])
		}
	}
	return sub
}

func (g *Graph) addNode(n *types.Node) {
	g.nodes[n.Name] = n
	g.order = append(g.order, n.Name)
}

func (g *Graph) link(a, b string) {
	for _, p := range [][2]string{{a, b}, {b, a}} {
		set, ok := g.adj[p[0]]
		if !ok {
			set = make(map[string]struct{})
			g.adj[p[0]] = set
		}
		set[p[1]] = struct{}{}
	}
}
