package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/scrypster/lorewiki/pkg/types"
)

// The snapshot format is networkx node-link JSON: a flat object per node
// keyed by "id", plus a "links" list. Version 2 snapshots add a
// "schema_version" key and write only the typed attribute fields. Legacy
// snapshots (no version) carry arbitrary flat attributes, notably a scalar
// "year", and are migrated on read.

type nodeLinkDocument struct {
	SchemaVersion int              `json:"schema_version,omitempty"`
	Directed      bool             `json:"directed"`
	Multigraph    bool             `json:"multigraph"`
	Nodes         []map[string]any `json:"nodes"`
	Links         []nodeLinkEdge   `json:"links"`
	Edges         []nodeLinkEdge   `json:"edges"`
}

type nodeLinkNode struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	YearNumeric *float64 `json:"year_numeric,omitempty"`
	DisplayDate string   `json:"display_date,omitempty"`
	Year        string   `json:"year,omitempty"`
}

type nodeLinkEdge struct {
	Source   any    `json:"source"`
	Target   any    `json:"target"`
	Relation string `json:"relation,omitempty"`
}

// Marshal encodes g as a version 2 node-link document.
func Marshal(g *Graph) ([]byte, error) {
	type document struct {
		SchemaVersion int            `json:"schema_version"`
		Directed      bool           `json:"directed"`
		Multigraph    bool           `json:"multigraph"`
		Graph         map[string]any `json:"graph"`
		Nodes         []nodeLinkNode `json:"nodes"`
		Links         []nodeLinkEdge `json:"links"`
	}

	doc := document{
		SchemaVersion: types.NodeAttributesVersion,
		Graph:         map[string]any{},
		Nodes:         make([]nodeLinkNode, 0, g.Len()),
		Links:         []nodeLinkEdge{},
	}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeLinkNode{
			ID:          n.Name,
			Type:        string(n.Type),
			Description: n.Attributes.Description,
			YearNumeric: n.Attributes.YearNumeric,
			DisplayDate: n.Attributes.DisplayDate,
			Year:        n.Attributes.LegacyYear,
		})
	}
	for _, e := range g.Edges() {
		doc.Links = append(doc.Links, nodeLinkEdge{Source: e.Source, Target: e.Target, Relation: e.Relation})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode graph snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a node-link document of any schema version. Nodes with
// no type become Placeholder nodes; unknown types become Concept nodes.
func Unmarshal(data []byte) (*Graph, error) {
	g := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return g, nil
	}

	var doc nodeLinkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode graph snapshot: %w", err)
	}
	if doc.SchemaVersion > types.NodeAttributesVersion {
		return nil, fmt.Errorf("decode graph snapshot: unsupported schema version %d", doc.SchemaVersion)
	}

	for i, raw := range doc.Nodes {
		name := scalarString(raw["id"])
		if name == "" {
			return nil, fmt.Errorf("decode graph snapshot: node %d has no id", i)
		}
		nodeType := types.NodeTypePlaceholder
		if t := scalarString(raw["type"]); t != "" {
			nodeType = types.ParseNodeType(t)
		}
		if err := g.UpsertEntity(name, nodeType, MigrateAttributes(raw), true); err != nil {
			return nil, fmt.Errorf("decode graph snapshot: %w", err)
		}
	}

	links := doc.Links
	if len(links) == 0 {
		links = doc.Edges
	}
	for i, l := range links {
		source, target := scalarString(l.Source), scalarString(l.Target)
		if source == target {
			continue
		}
		if err := g.UpsertRelationship(source, target, l.Relation); err != nil {
			return nil, fmt.Errorf("decode graph snapshot: link %d: %w", i, err)
		}
	}
	return g, nil
}

// MigrateAttributes maps a flat node-link attribute object to the typed
// attribute schema. A legacy "year" value, numeric or string, is preserved
// verbatim in LegacyYear; consumers derive a numeric year from it on read.
// Keys outside the schema are dropped.
func MigrateAttributes(raw map[string]any) types.NodeAttributes {
	var attrs types.NodeAttributes
	attrs.Description = scalarString(raw["description"])
	attrs.DisplayDate = scalarString(raw["display_date"])
	attrs.LegacyYear = scalarString(raw["year"])

	switch v := raw["year_numeric"].(type) {
	case float64:
		attrs.YearNumeric = types.Year(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			attrs.YearNumeric = types.Year(f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			attrs.YearNumeric = types.Year(f)
		}
	}
	return attrs
}

// scalarString renders a decoded JSON scalar as a string. Whole numbers
// render without a fractional part so a legacy year 2023 reads "2023".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
