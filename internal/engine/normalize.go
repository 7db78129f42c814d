package engine

import "strings"

// NormalizeTitle strips leading markdown heading markers and surrounding
// whitespace from a requested title: "## The Spire " becomes "The Spire".
func NormalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.TrimLeft(title, "#")
	return strings.TrimSpace(title)
}

// foldTitle reduces a title to the form compared by the heuristic alias
// tier: lower case without a leading "the ".
func foldTitle(title string) string {
	folded := strings.ToLower(strings.TrimSpace(title))
	if rest, ok := strings.CutPrefix(folded, "the "); ok {
		folded = strings.TrimSpace(rest)
	}
	return folded
}

// heuristicMatch reports whether requested and canonical name the same
// article: equal ignoring case, or equal once a leading "the " is removed
// from both.
func heuristicMatch(requested, canonical string) bool {
	if strings.EqualFold(requested, canonical) {
		return true
	}
	return foldTitle(requested) == foldTitle(canonical)
}
