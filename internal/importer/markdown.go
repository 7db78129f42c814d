package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/lorewiki/pkg/types"
)

// summaryLimit caps summaries derived from the body.
const summaryLimit = 280

// Frontmatter is the YAML header of a lore file. Every field is optional.
type Frontmatter struct {
	Title         string `yaml:"title"`
	Summary       string `yaml:"summary"`
	DisplayDate   string `yaml:"display_date"`
	TimelineEvent string `yaml:"timeline_event"`

	// Year is either a number ("2024.5", "-300") or a free-form legacy date.
	Year yaml.Node `yaml:"year"`

	Aliases []string              `yaml:"aliases"`
	Related []types.RelatedEntity `yaml:"related"`
}

// LoreFile is a parsed markdown file ready to import.
type LoreFile struct {
	RelativePath string
	Title        string
	Summary      string
	Content      string

	Aliases   []string
	Related   []types.RelatedEntity
	WikiLinks []WikiLink

	// Chronology; YearNumeric is nil when the year is absent or not a
	// number, in which case LegacyYear holds the raw value.
	YearNumeric   *float64
	LegacyYear    string
	DisplayDate   string
	TimelineEvent string
}

// HasChronology reports whether the file dates its subject.
func (f *LoreFile) HasChronology() bool {
	return f.YearNumeric != nil || f.LegacyYear != ""
}

// Plan expresses the file as a generation plan so it folds into the graph
// the same way generated articles do.
func (f *LoreFile) Plan() *types.Plan {
	related := make([]types.RelatedEntity, 0, len(f.Related)+len(f.WikiLinks))
	related = append(related, f.Related...)
	for _, l := range f.WikiLinks {
		related = append(related, types.RelatedEntity{Name: l.Target, Type: string(types.NodeTypeConcept), Relation: "links_to"})
	}

	plan := &types.Plan{
		Summary:           f.Summary,
		RelatedEntities:   related,
		ChronologyNumeric: f.YearNumeric,
		ChronologyDisplay: f.DisplayDate,
		TimelineEvent:     f.TimelineEvent,
	}
	if plan.ChronologyNumeric != nil && plan.TimelineEvent == "" {
		plan.TimelineEvent = f.Title
	}
	return plan
}

// ParseLoreFile parses one markdown file. relativePath names the file in
// errors and supplies the title when neither frontmatter nor an H1 does.
func ParseLoreFile(content []byte, relativePath string) (*LoreFile, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relativePath, err)
	}

	title := strings.TrimSpace(fm.Title)
	h1, rest := cutH1(body)
	if title == "" {
		title = h1
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}
	if h1 != "" && h1 == title {
		body = rest
	}

	f := &LoreFile{
		RelativePath:  relativePath,
		Title:         title,
		Content:       strings.TrimSpace(StripWikiLinks(body)),
		Aliases:       cleanNames(fm.Aliases, title),
		WikiLinks:     ExtractWikiLinks(body),
		DisplayDate:   strings.TrimSpace(fm.DisplayDate),
		TimelineEvent: strings.TrimSpace(fm.TimelineEvent),
	}
	for _, r := range fm.Related {
		if r.Name = strings.TrimSpace(r.Name); r.Name != "" && r.Name != title {
			f.Related = append(f.Related, r)
		}
	}

	f.Summary = strings.TrimSpace(fm.Summary)
	if f.Summary == "" {
		f.Summary = firstParagraph(f.Content, summaryLimit)
	}

	if raw := strings.TrimSpace(fm.Year.Value); fm.Year.Kind == yaml.ScalarNode && raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			f.YearNumeric = &v
		} else {
			f.LegacyYear = raw
		}
		if f.DisplayDate == "" {
			f.DisplayDate = raw
		}
	}
	return f, nil
}

// splitFrontmatter separates a leading --- delimited YAML block from the
// body. A file without a closed block is all body.
func splitFrontmatter(content []byte) (Frontmatter, string, error) {
	var fm Frontmatter
	text := strings.ReplaceAll(string(bytes.TrimPrefix(content, []byte("\uFEFF"))), "\r\n", "\n")

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return fm, text, nil
	}
	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return fm, text, nil
	}

	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return fm, text, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// cutH1 returns the first level-one heading and the body without it, when
// the heading is the first non-blank line.
func cutH1(body string) (string, string) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:]), strings.Join(lines[i+1:], "\n")
		}
		break
	}
	return "", body
}

// titleFromPath derives a title from the file name: "lost_commuters.md"
// becomes "lost commuters".
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.TrimSpace(name)
}

// firstParagraph returns the first prose paragraph of content, cut at a
// word boundary near limit.
func firstParagraph(content string, limit int) string {
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") {
			continue
		}
		para = strings.Join(strings.Fields(para), " ")
		if len(para) <= limit {
			return para
		}
		cut := strings.LastIndex(para[:limit], " ")
		if cut <= 0 {
			cut = limit
		}
		return strings.TrimSpace(para[:cut]) + "…"
	}
	return ""
}

func cleanNames(names []string, exclude string) []string {
	var out []string
	seen := map[string]bool{exclude: true}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
