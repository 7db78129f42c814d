package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/pkg/types"
)

func TestUpsertEntity_CreateAndMerge(t *testing.T) {
	g := New()

	require.NoError(t, g.UpsertEntity("Mars Colony", types.NodeTypeLocation, types.NodeAttributes{Description: "red"}, false))
	require.NoError(t, g.UpsertEntity("Mars Colony", types.NodeTypeArticle, types.NodeAttributes{YearNumeric: types.Year(2130)}, false))

	n, ok := g.Node("Mars Colony")
	require.True(t, ok)
	assert.Equal(t, types.NodeTypeLocation, n.Type, "type must not change without force")
	assert.Equal(t, "red", n.Attributes.Description)
	require.NotNil(t, n.Attributes.YearNumeric)
	assert.Equal(t, 2130.0, *n.Attributes.YearNumeric)
}

func TestUpsertEntity_ForceType(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertEntity("Lost Commuters", types.NodeTypeConcept, types.NodeAttributes{}, false))
	require.NoError(t, g.UpsertEntity("Lost Commuters", types.NodeTypeAlias, types.NodeAttributes{}, true))

	n, _ := g.Node("Lost Commuters")
	assert.Equal(t, types.NodeTypeAlias, n.Type)
}

func TestUpsertEntity_PlaceholderPromoted(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertRelationship("A", "B", "knows"))

	n, _ := g.Node("B")
	assert.Equal(t, types.NodeTypePlaceholder, n.Type)

	require.NoError(t, g.UpsertEntity("B", types.NodeTypePerson, types.NodeAttributes{}, false))
	n, _ = g.Node("B")
	assert.Equal(t, types.NodeTypePerson, n.Type)
}

func TestUpsertEntity_Invalid(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.UpsertEntity("  ", types.NodeTypePerson, types.NodeAttributes{}, false), ErrInvalidNode)
	assert.ErrorIs(t, g.UpsertEntity("X", types.NodeType("Spaceship"), types.NodeAttributes{}, false), ErrInvalidNode)
	assert.Equal(t, 0, g.Len())
}

func TestUpsertRelationship_SingleEdgePerPair(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertRelationship("Alice", "Bob", "friend_of"))
	require.NoError(t, g.UpsertRelationship("Bob", "Alice", "rival_of"))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "rival_of", edges[0].Relation)
	assert.Equal(t, "Bob", edges[0].Source)

	e, ok := g.Edge("Alice", "Bob")
	require.True(t, ok)
	assert.Equal(t, "rival_of", e.Relation)
	assert.Equal(t, []string{"Bob"}, g.Neighbors("Alice"))
}

func TestUpsertRelationship_RejectsSelfLoop(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.UpsertRelationship("A", "A", "is"), ErrInvalidNode)
}

func TestAliasTarget(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertEntity("The Lost Commuters", types.NodeTypeArticle, types.NodeAttributes{}, false))
	require.NoError(t, g.UpsertEntity("lost commuters", types.NodeTypeAlias, types.NodeAttributes{}, true))
	require.NoError(t, g.UpsertRelationship("lost commuters", "The Lost Commuters", types.RelationAliasOf))

	target, ok := g.AliasTarget("lost commuters")
	require.True(t, ok)
	assert.Equal(t, "The Lost Commuters", target)

	_, ok = g.AliasTarget("The Lost Commuters")
	assert.False(t, ok, "article nodes are not aliases")

	_, ok = g.AliasTarget("missing")
	assert.False(t, ok)
}

func TestAliasTarget_AliasWithoutEdge(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertEntity("dangling", types.NodeTypeAlias, types.NodeAttributes{}, false))
	require.NoError(t, g.UpsertRelationship("dangling", "Other", "mentions"))

	_, ok := g.AliasTarget("dangling")
	assert.False(t, ok)
}

func TestClone_IsIndependent(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertEntity("A", types.NodeTypeEvent, types.NodeAttributes{YearNumeric: types.Year(1)}, false))

	c := g.Clone()
	require.NoError(t, c.UpsertEntity("A", types.NodeTypeEvent, types.NodeAttributes{YearNumeric: types.Year(2)}, false))
	require.NoError(t, c.UpsertRelationship("A", "B", "near"))

	n, _ := g.Node("A")
	assert.Equal(t, 1.0, *n.Attributes.YearNumeric)
	assert.False(t, g.HasNode("B"))
	assert.Empty(t, g.Neighbors("A"))
}

func TestSubgraph(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertRelationship("A", "B", "r"))
	require.NoError(t, g.UpsertRelationship("B", "C", "r"))
	require.NoError(t, g.UpsertRelationship("C", "D", "r"))
	require.NoError(t, g.UpsertRelationship("X", "Y", "r"))

	one := g.Subgraph([]string{"A"}, Bounds{MaxHops: 1})
	assert.ElementsMatch(t, []string{"A", "B"}, nodeNames(one))
	assert.Len(t, one.Edges(), 1)

	two := g.Subgraph([]string{"A"}, Bounds{MaxHops: 2})
	assert.ElementsMatch(t, []string{"A", "B", "C"}, nodeNames(two))
	assert.Len(t, two.Edges(), 2)

	multi := g.Subgraph([]string{"A", "X", "missing"}, Bounds{})
	assert.ElementsMatch(t, []string{"A", "B", "X", "Y"}, nodeNames(multi))

	capped := g.Subgraph([]string{"B"}, Bounds{MaxHops: 4, MaxNodes: 2})
	assert.Equal(t, 2, capped.Len())

	assert.Equal(t, 0, g.Subgraph([]string{"missing"}, Bounds{}).Len())
}

func TestBoundsNormalize(t *testing.T) {
	b := Bounds{}
	b.Normalize()
	assert.Equal(t, DefaultMaxHops, b.MaxHops)
	assert.Equal(t, DefaultMaxNodes, b.MaxNodes)

	b = Bounds{MaxHops: 100, MaxNodes: 1 << 20}
	b.Normalize()
	assert.Equal(t, MaxAllowedHops, b.MaxHops)
	assert.Equal(t, MaxAllowedNodes, b.MaxNodes)
}

func nodeNames(g *Graph) []string {
	var names []string
	for _, n := range g.Nodes() {
		names = append(names, n.Name)
	}
	return names
}
