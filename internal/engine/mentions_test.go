package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/pkg/types"
)

func TestScanMentions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		names   []string
		want    []string
	}{
		{
			name:    "longest first",
			content: "The Great War ended the Great era.",
			names:   []string{"Great", "Great War"},
			want:    []string{"Great War", "Great"},
		},
		{
			name:    "word boundaries",
			content: "Lineage of Line 9 riders.",
			names:   []string{"Line", "Line 9"},
			want:    []string{"Line 9"},
		},
		{
			name:    "skips markdown links",
			content: "See [Line 9](/wiki/Line%209) and the Depot.",
			names:   []string{"Line 9", "Depot"},
			want:    []string{"Depot"},
		},
		{
			name:    "first occurrence order",
			content: "Depot, then Line 9, then Depot again.",
			names:   []string{"Line 9", "Depot"},
			want:    []string{"Depot", "Line 9"},
		},
		{
			name:    "case sensitive",
			content: "the depot",
			names:   []string{"Depot"},
			want:    nil,
		},
		{
			name:    "regex metacharacters",
			content: "Built by A.C.M.E. (Ltd) last year.",
			names:   []string{"A.C.M.E", "Ltd"},
			want:    []string{"A.C.M.E", "Ltd"},
		},
		{
			name:    "names ending in punctuation",
			content: "Ask Dr. Vance. about (The) Spire tonight.",
			names:   []string{"Dr. Vance.", "(The) Spire"},
			want:    []string{"Dr. Vance.", "(The) Spire"},
		},
		{
			name:    "word side still bounded",
			content: "The (The) Spires stand tall.",
			names:   []string{"(The) Spire"},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScanMentions(tt.content, tt.names))
		})
	}
}

func TestMentions_RedLinks(t *testing.T) {
	ctx := context.Background()
	h := newTestWorld(t, testWorldConfig())
	seedArticle(t, h, "The Lost Commuters", "The Lost Commuters ride Line 9 past the Depot, guided by the Conductor.")
	seedArticle(t, h, "Line 9", "A subway line.")
	require.NoError(t, h.Graph.UpsertRelationship(ctx, "The Lost Commuters", "Depot", "haunts"))
	require.NoError(t, recordAlias(ctx, h.Graph, "Conductor", "Line 9"))

	mentions, err := Mentions(ctx, h, "# The Lost Commuters")
	require.NoError(t, err)

	assert.Equal(t, []Mention{
		{Name: "Line 9", Type: types.NodeTypeArticle, Target: "Line 9", Exists: true},
		{Name: "Depot", Type: types.NodeTypePlaceholder, Target: "Depot", Exists: false},
		{Name: "Conductor", Type: types.NodeTypeAlias, Target: "Line 9", Exists: true},
	}, mentions)
}
