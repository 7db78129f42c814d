package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/lorewiki/internal/graph"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
)

// GatheredContext is the read-only context handed to the planner and the
// consistency checker.
type GatheredContext struct {
	// Similar holds the top-K similar articles, most similar first. It is
	// empty for a fresh world.
	Similar []storage.SimilarDocument

	// Neighborhood is the node-link JSON of the graph around the seed
	// titles, or "" when none of them is in the graph.
	Neighborhood string
}

// Snippets returns the similar article texts in rank order.
func (c *GatheredContext) Snippets() []string {
	out := make([]string, 0, len(c.Similar))
	for _, d := range c.Similar {
		out = append(out, d.Content)
	}
	return out
}

// Titles returns the titles of the similar articles in rank order.
func (c *GatheredContext) Titles() []string {
	out := make([]string, 0, len(c.Similar))
	for _, d := range c.Similar {
		out = append(out, d.Title)
	}
	return out
}

// ContextAggregator reads similarity and graph-neighborhood context for a
// title. It never writes.
type ContextAggregator struct {
	topK   int
	bounds graph.Bounds
}

// NewContextAggregator returns an aggregator querying topK similar articles
// and the graph within hops of the seeds.
func NewContextAggregator(topK, hops int) *ContextAggregator {
	if topK < 1 {
		topK = 3
	}
	b := graph.Bounds{MaxHops: hops}
	b.Normalize()
	return &ContextAggregator{topK: topK, bounds: b}
}

// Gather fetches both kinds of context concurrently. The similarity query
// uses query; the neighborhood is seeded with seeds.
func (a *ContextAggregator) Gather(ctx context.Context, h *world.Handle, query string, seeds ...string) (*GatheredContext, error) {
	out := &GatheredContext{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		docs, err := a.similar(gctx, h, query)
		if err != nil {
			return err
		}
		out.Similar = docs
		return nil
	})

	g.Go(func() error {
		summary, err := a.neighborhood(gctx, h, seeds)
		if err != nil {
			return err
		}
		out.Neighborhood = summary
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Similar runs only the similarity query.
func (a *ContextAggregator) Similar(ctx context.Context, h *world.Handle, query string) ([]storage.SimilarDocument, error) {
	return a.similar(ctx, h, query)
}

func (a *ContextAggregator) similar(ctx context.Context, h *world.Handle, query string) ([]storage.SimilarDocument, error) {
	docs, err := h.Store.QuerySimilar(ctx, query, a.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	if docs == nil {
		docs = []storage.SimilarDocument{}
	}
	return docs, nil
}

func (a *ContextAggregator) neighborhood(ctx context.Context, h *world.Handle, seeds []string) (string, error) {
	if len(seeds) == 0 {
		return "", nil
	}
	sub, err := h.Graph.Neighborhood(ctx, seeds, a.bounds)
	if err != nil {
		return "", fmt.Errorf("graph neighborhood: %w", err)
	}
	if sub.Len() == 0 {
		return "", nil
	}
	data, err := graph.Marshal(sub)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
