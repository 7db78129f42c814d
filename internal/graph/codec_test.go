package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/pkg/types"
)

func TestMarshalUnmarshal_PreservesGraph(t *testing.T) {
	g := New()
	require.NoError(t, g.UpsertEntity("Battle of Ceres", types.NodeTypeArticle, types.NodeAttributes{
		Description: "A decisive engagement",
		YearNumeric: types.Year(2291.5),
		DisplayDate: "Mid 2291",
	}, false))
	require.NoError(t, g.UpsertEntity("Admiral Voss", types.NodeTypePerson, types.NodeAttributes{}, false))
	require.NoError(t, g.UpsertRelationship("Battle of Ceres", "Admiral Voss", "commanded_by"))

	data, err := Marshal(g)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(types.NodeAttributesVersion), doc["schema_version"])
	assert.Equal(t, false, doc["directed"])
	assert.Equal(t, false, doc["multigraph"])

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), back.Nodes())
	assert.Equal(t, g.Edges(), back.Edges())
}

func TestUnmarshal_LegacyNetworkxDocument(t *testing.T) {
	legacy := `{
		"directed": false,
		"multigraph": false,
		"graph": {},
		"nodes": [
			{"type": "Event", "year": 2023, "description": "The launch", "id": "Launch Day"},
			{"type": "Event", "year": "Age of Rust", "id": "Rust Fall"},
			{"type": "person", "id": "Mira", "mood": "tired"},
			{"id": "Untyped"}
		],
		"links": [
			{"relation": "attended", "source": "Mira", "target": "Launch Day"},
			{"relation": "self", "source": "Mira", "target": "Mira"},
			{"source": "Untyped", "target": "Ghost"}
		]
	}`

	g, err := Unmarshal([]byte(legacy))
	require.NoError(t, err)

	launch, ok := g.Node("Launch Day")
	require.True(t, ok)
	assert.Equal(t, types.NodeTypeEvent, launch.Type)
	assert.Equal(t, "2023", launch.Attributes.LegacyYear)
	assert.Nil(t, launch.Attributes.YearNumeric)
	assert.Equal(t, "The launch", launch.Attributes.Description)

	rust, _ := g.Node("Rust Fall")
	assert.Equal(t, "Age of Rust", rust.Attributes.LegacyYear)

	mira, _ := g.Node("Mira")
	assert.Equal(t, types.NodeTypePerson, mira.Type)

	untyped, _ := g.Node("Untyped")
	assert.Equal(t, types.NodeTypePlaceholder, untyped.Type)

	ghost, ok := g.Node("Ghost")
	require.True(t, ok, "link endpoints missing from nodes are created")
	assert.Equal(t, types.NodeTypePlaceholder, ghost.Type)

	assert.Len(t, g.Edges(), 2, "self loops are dropped")
}

func TestUnmarshal_EdgesKey(t *testing.T) {
	doc := `{"nodes":[{"id":"A"},{"id":"B"}],"edges":[{"source":"A","target":"B","relation":"r"}]}`
	g, err := Unmarshal([]byte(doc))
	require.NoError(t, err)

	e, ok := g.Edge("A", "B")
	require.True(t, ok)
	assert.Equal(t, "r", e.Relation)
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := Unmarshal([]byte(`{"nodes": [`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"nodes":[{"type":"Event"}]}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"schema_version": 99, "nodes": []}`))
	assert.Error(t, err)

	g, err := Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestMigrateAttributes(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want types.NodeAttributes
	}{
		{
			name: "numeric legacy year",
			raw:  map[string]any{"year": float64(2023)},
			want: types.NodeAttributes{LegacyYear: "2023"},
		},
		{
			name: "fractional legacy year",
			raw:  map[string]any{"year": 2024.5},
			want: types.NodeAttributes{LegacyYear: "2024.5"},
		},
		{
			name: "string year numeric",
			raw:  map[string]any{"year_numeric": " -300 ", "display_date": "300 BE"},
			want: types.NodeAttributes{YearNumeric: types.Year(-300), DisplayDate: "300 BE"},
		},
		{
			name: "current schema",
			raw:  map[string]any{"year_numeric": 12.25, "display_date": "Q1 12", "description": "d"},
			want: types.NodeAttributes{YearNumeric: types.Year(12.25), DisplayDate: "Q1 12", Description: "d"},
		},
		{
			name: "unknown keys dropped",
			raw:  map[string]any{"color": "blue"},
			want: types.NodeAttributes{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MigrateAttributes(tt.raw))
		})
	}
}
