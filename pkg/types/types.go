// Package types defines the core data structures for the lorewiki system.
// These types represent articles, knowledge-graph nodes and edges, timeline
// projections and the structured artifacts exchanged with the text generator.
package types

import "strings"

// NodeType classifies a node in a world's knowledge graph.
type NodeType string

// Node type constants. Article nodes mirror canonical Article records one to
// one; Alias nodes point at an Article node through an is_alias_of edge.
const (
	NodeTypeArticle      NodeType = "Article"
	NodeTypeAlias        NodeType = "Alias"
	NodeTypeEvent        NodeType = "Event"
	NodeTypePerson       NodeType = "Person"
	NodeTypeLocation     NodeType = "Location"
	NodeTypeOrganization NodeType = "Organization"
	NodeTypeObject       NodeType = "Object"
	NodeTypeConcept      NodeType = "Concept"
	NodeTypeTechnology   NodeType = "Technology"
	NodeTypePlaceholder  NodeType = "Placeholder"
)

// RelationAliasOf is the relation label of the single outgoing edge of an
// Alias node.
const RelationAliasOf = "is_alias_of"

// allNodeTypes lists every valid node type.
var allNodeTypes = []NodeType{
	NodeTypeArticle,
	NodeTypeAlias,
	NodeTypeEvent,
	NodeTypePerson,
	NodeTypeLocation,
	NodeTypeOrganization,
	NodeTypeObject,
	NodeTypeConcept,
	NodeTypeTechnology,
	NodeTypePlaceholder,
}

// AllNodeTypes returns every valid node type.
func AllNodeTypes() []NodeType {
	out := make([]NodeType, len(allNodeTypes))
	copy(out, allNodeTypes)
	return out
}

// IsValid reports whether t is one of the known node types.
func (t NodeType) IsValid() bool {
	for _, v := range allNodeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseNodeType maps a loosely formatted type label (as produced by the
// planner, e.g. "person" or " Location ") to a NodeType. Unknown labels map
// to NodeTypeConcept so a plan never fails on an unexpected type.
func ParseNodeType(s string) NodeType {
	for _, v := range allNodeTypes {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v
		}
	}
	return NodeTypeConcept
}
