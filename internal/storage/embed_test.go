package storage_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/lorewiki/internal/storage"
)

func TestEmbedText(t *testing.T) {
	assert.Equal(t, "Line 9\n\nA haunted line.", storage.EmbedText("Line 9", "A haunted line."))
	assert.Equal(t, "query only", storage.EmbedText("", "query only"))

	long := strings.Repeat("a", storage.MaxEmbedBytes+10)
	assert.Len(t, storage.EmbedText("", long), storage.MaxEmbedBytes)
}

func TestEmbedText_CutsOnRuneBoundary(t *testing.T) {
	// "ö" is two bytes; the byte limit falls inside the last one.
	content := strings.Repeat("a", storage.MaxEmbedBytes-1) + "öö"
	got := storage.EmbedText("", content)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, storage.MaxEmbedBytes-1, len(got))
	assert.True(t, strings.HasPrefix(content, got))
}
