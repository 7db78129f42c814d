package importer

import (
	"regexp"
	"strings"
)

// wikiLinkRe matches [[Target]] and [[Target|label]].
var wikiLinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// WikiLink is one [[...]] reference in a lore file.
type WikiLink struct {
	Target string
	Label  string
}

// Text is what the link reads as in plain prose.
func (l WikiLink) Text() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Target
}

// ExtractWikiLinks returns the distinct link targets in order of first
// appearance. Targets compare exactly, as article titles do.
func ExtractWikiLinks(content string) []WikiLink {
	var links []WikiLink
	seen := make(map[string]bool)
	for _, m := range wikiLinkRe.FindAllStringSubmatch(content, -1) {
		l := WikiLink{Target: strings.TrimSpace(m[1]), Label: strings.TrimSpace(m[2])}
		if l.Target == "" || seen[l.Target] {
			continue
		}
		seen[l.Target] = true
		links = append(links, l)
	}
	return links
}

// StripWikiLinks replaces every [[...]] with its display text.
func StripWikiLinks(content string) string {
	return wikiLinkRe.ReplaceAllStringFunc(content, func(match string) string {
		m := wikiLinkRe.FindStringSubmatch(match)
		return WikiLink{Target: strings.TrimSpace(m[1]), Label: strings.TrimSpace(m[2])}.Text()
	})
}
