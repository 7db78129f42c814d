package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// markdownLink matches an inline markdown link. Text inside links is never
// scanned for mentions.
var markdownLink = regexp.MustCompile(`\[[^\]]*?\]\([^)]*?\)`)

// Mention is a graph entity named in an article's text.
type Mention struct {
	Name string         `json:"name"`
	Type types.NodeType `json:"type"`

	// Target is the article title the name leads to; it differs from Name
	// for aliases.
	Target string `json:"target"`

	// Exists is false for red links: entities without an article yet.
	Exists bool `json:"exists"`
}

// ScanMentions returns the names occurring in content as whole words,
// outside markdown links, in order of first occurrence. Longer names win
// over names they contain.
func ScanMentions(content string, names []string) []string {
	candidates := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && strings.Contains(content, n) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	quoted := make([]string, len(candidates))
	for i, n := range candidates {
		quoted[i] = boundedName(n)
	}
	pattern := regexp.MustCompile(strings.Join(quoted, "|"))

	var found []string
	seen := make(map[string]bool)
	for _, chunk := range splitOutsideLinks(content) {
		for _, m := range pattern.FindAllString(chunk, -1) {
			if !seen[m] {
				seen[m] = true
				found = append(found, m)
			}
		}
	}
	return found
}

// boundedName quotes name and adds a word boundary at each end that is an
// ASCII word character. An end such as "." or ")" cannot sit on a \b.
func boundedName(name string) string {
	q := regexp.QuoteMeta(name)
	if isWordByte(name[0]) {
		q = `\b` + q
	}
	if isWordByte(name[len(name)-1]) {
		q += `\b`
	}
	return q
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// splitOutsideLinks returns the parts of content between markdown links.
func splitOutsideLinks(content string) []string {
	var parts []string
	last := 0
	for _, loc := range markdownLink.FindAllStringIndex(content, -1) {
		parts = append(parts, content[last:loc[0]])
		last = loc[1]
	}
	return append(parts, content[last:])
}

// Mentions lists the graph entities named in the article for title, other
// than the article itself.
func Mentions(ctx context.Context, h *world.Handle, title string) ([]Mention, error) {
	article, err := lookupArticle(ctx, h, NormalizeTitle(title))
	if err != nil {
		return nil, err
	}

	g, err := h.Graph.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	titles, err := h.Store.ListTitles(ctx)
	if err != nil {
		return nil, err
	}
	hasArticle := make(map[string]bool, len(titles))
	for _, t := range titles {
		hasArticle[t] = true
	}

	nodes := g.Nodes()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.Name != article.Title {
			names = append(names, n.Name)
		}
	}

	found := ScanMentions(article.Content, names)
	out := make([]Mention, 0, len(found))
	for _, name := range found {
		n, _ := g.Node(name)
		target := name
		if t, ok := g.AliasTarget(name); ok {
			target = t
		}
		if target == article.Title {
			continue
		}
		out = append(out, Mention{Name: name, Type: n.Type, Target: target, Exists: hasArticle[target]})
	}
	return out, nil
}
