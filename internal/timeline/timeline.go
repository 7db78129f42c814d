// Package timeline derives a world's chronology from its knowledge graph.
// Nothing here is stored; every query projects the current graph nodes.
package timeline

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/scrypster/lorewiki/pkg/types"
)

// UnparsableYear sorts events whose legacy year is not a number after every
// real date.
const UnparsableYear = 99999

// DefaultWindow is the half-width, in years, of a nearby-events query.
const DefaultWindow = 10

// NodeSource supplies the graph nodes to project. It is satisfied by
// *graph.Manager.
type NodeSource interface {
	Nodes(ctx context.Context) ([]types.Node, error)
}

// Index answers chronology queries over one world.
type Index struct {
	source NodeSource
}

// New returns an index over source.
func New(source NodeSource) *Index {
	return &Index{source: source}
}

// AllEvents returns every chronology-bearing node ordered by ascending
// year. Events with equal years keep graph insertion order.
func (x *Index) AllEvents(ctx context.Context) ([]types.TimelineEvent, error) {
	nodes, err := x.source.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	return Project(nodes), nil
}

// EventsAtYear returns events within one year of year, which absorbs
// sub-year encodings such as 2024.5.
func (x *Index) EventsAtYear(ctx context.Context, year float64) ([]types.TimelineEvent, error) {
	events, err := x.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return filter(events, func(e types.TimelineEvent) bool {
		return math.Abs(e.YearNumeric-year) < 1.0
	}), nil
}

// EventsNear returns events at most window years from year. A window <= 0
// uses DefaultWindow.
func (x *Index) EventsNear(ctx context.Context, year float64, window float64) ([]types.TimelineEvent, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	events, err := x.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return filter(events, func(e types.TimelineEvent) bool {
		return math.Abs(e.YearNumeric-year) <= window
	}), nil
}

// Project converts nodes into sorted timeline events. A node qualifies when
// it is an Event or carries chronology attributes. Event nodes with no date
// at all are skipped.
func Project(nodes []types.Node) []types.TimelineEvent {
	events := make([]types.TimelineEvent, 0)
	for _, n := range nodes {
		if n.Type != types.NodeTypeEvent && !n.Attributes.HasChronology() {
			continue
		}
		e, ok := eventFromNode(n)
		if !ok {
			continue
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].YearNumeric < events[j].YearNumeric
	})
	return events
}

func eventFromNode(n types.Node) (types.TimelineEvent, bool) {
	attrs := n.Attributes
	e := types.TimelineEvent{
		Name:        n.Name,
		DisplayDate: attrs.DisplayDate,
		Description: attrs.Description,
	}

	switch {
	case attrs.YearNumeric != nil:
		e.YearNumeric = *attrs.YearNumeric
	case attrs.LegacyYear != "":
		e.YearNumeric = ParseLegacyYear(attrs.LegacyYear)
	default:
		return types.TimelineEvent{}, false
	}

	if e.DisplayDate == "" {
		if attrs.LegacyYear != "" {
			e.DisplayDate = attrs.LegacyYear
		} else {
			e.DisplayDate = strconv.FormatFloat(e.YearNumeric, 'f', -1, 64)
		}
	}
	return e, true
}

// ParseLegacyYear converts a legacy scalar year to a number, returning
// UnparsableYear when it is not numeric.
func ParseLegacyYear(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return UnparsableYear
	}
	return v
}

func filter(events []types.TimelineEvent, keep func(types.TimelineEvent) bool) []types.TimelineEvent {
	out := make([]types.TimelineEvent, 0, len(events))
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
