package types

// RelatedEntity is an entity the planner links to the article subject.
type RelatedEntity struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Relation string `json:"relation"`
}

// Plan is the structured intermediate artifact produced before content is
// written.
type Plan struct {
	Summary         string          `json:"summary"`
	Outline         []string        `json:"outline"`
	RelatedEntities []RelatedEntity `json:"related_entities"`
	ImagePrompt     string          `json:"image_prompt"`
	ImageCaption    string          `json:"image_caption"`

	// ChronologyNumeric is nil when the subject has no place on the timeline.
	ChronologyNumeric *float64 `json:"chronology_numeric"`
	ChronologyDisplay string   `json:"chronology_display"`
	TimelineEvent     string   `json:"timeline_event"`
}

// HasTimelineEntry reports whether the plan places its subject on the
// timeline.
func (p *Plan) HasTimelineEntry() bool {
	return p.ChronologyNumeric != nil && p.TimelineEvent != ""
}

// ValidationResult is the consistency checker's verdict on a piece of content.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
}

// DedupVerdict answers whether a requested title names an entity that
// already has an article.
type DedupVerdict struct {
	IsDuplicate   bool   `json:"is_duplicate"`
	ExistingTitle string `json:"existing_title"`
}
