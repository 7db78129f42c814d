package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToTSQuery(t *testing.T) {
	assert.Equal(t, "ghost:* | train:*", toTSQuery("Ghost train!"))
	assert.Equal(t, "king:* | road:*", toTSQuery("king's (road) & king"))
	assert.Equal(t, "", toTSQuery("!! ?"))
}
