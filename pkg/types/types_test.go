package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/lorewiki/pkg/types"
)

func TestParseNodeType(t *testing.T) {
	assert.Equal(t, types.NodeTypePerson, types.ParseNodeType("person"))
	assert.Equal(t, types.NodeTypeLocation, types.ParseNodeType(" Location "))
	assert.Equal(t, types.NodeTypeConcept, types.ParseNodeType("starship class"))
	assert.Equal(t, types.NodeTypeConcept, types.ParseNodeType(""))

	for _, nt := range types.AllNodeTypes() {
		assert.True(t, nt.IsValid(), nt)
	}
	assert.False(t, types.NodeType("person").IsValid(), "validity is case-sensitive")
}

func TestNodeAttributes_Merge(t *testing.T) {
	base := types.NodeAttributes{Description: "Founded", YearNumeric: types.Year(10), LegacyYear: "ten"}

	merged := base.Merge(types.NodeAttributes{DisplayDate: "Year Ten"})
	assert.Equal(t, "Founded", merged.Description)
	assert.Equal(t, 10.0, *merged.YearNumeric)
	assert.Equal(t, "Year Ten", merged.DisplayDate)

	merged = merged.Merge(types.NodeAttributes{YearNumeric: types.Year(-3.5)})
	assert.Equal(t, -3.5, *merged.YearNumeric)
	assert.Equal(t, 10.0, *base.YearNumeric, "merge does not alias the source pointer")

	assert.True(t, types.NodeAttributes{}.IsZero())
	assert.False(t, types.NodeAttributes{}.HasChronology())
	assert.True(t, types.NodeAttributes{LegacyYear: "Age of Ash"}.HasChronology())
}

func TestEdge_OtherAndPairKey(t *testing.T) {
	e := types.Edge{Source: "Ares", Target: "Mars", Relation: "orbits"}
	assert.Equal(t, "Mars", e.Other("Ares"))
	assert.Equal(t, "Ares", e.Other("Mars"))
	assert.Equal(t, "", e.Other("Venus"))

	assert.Equal(t, types.PairKey("Mars", "Ares"), types.PairKey("Ares", "Mars"))
}

func TestPlan_HasTimelineEntry(t *testing.T) {
	p := &types.Plan{TimelineEvent: "The fall"}
	assert.False(t, p.HasTimelineEntry())
	p.ChronologyNumeric = types.Year(0)
	assert.True(t, p.HasTimelineEntry(), "year zero is a valid position")
	p.TimelineEvent = ""
	assert.False(t, p.HasTimelineEntry())
}

func TestWorldConfig_WithDefaults(t *testing.T) {
	cfg := types.WorldConfig{Name: "Ceres", Style: "Terse field notes."}.WithDefaults()
	assert.Equal(t, types.DefaultPlannerPrompt, cfg.SystemPromptPlanner)
	assert.Equal(t, types.DefaultWriterPrompt, cfg.SystemPromptWriter)
	assert.Equal(t, types.DefaultImagePrompt, cfg.SystemPromptImage)
	assert.Equal(t, "Terse field notes.", cfg.Style)
	assert.Equal(t, "Ceres", cfg.Name)
}
