package storage

import "unicode/utf8"

// MaxEmbedBytes bounds the text sent to an Embedder per article.
const MaxEmbedBytes = 8000

// EmbedText returns the text embedded for an article: the title, a blank
// line and the content, cut to at most MaxEmbedBytes on a rune boundary.
func EmbedText(title, content string) string {
	t := content
	if title != "" {
		t = title + "\n\n" + content
	}
	if len(t) <= MaxEmbedBytes {
		return t
	}
	cut := MaxEmbedBytes
	for cut > 0 && !utf8.RuneStart(t[cut]) {
		cut--
	}
	return t[:cut]
}
