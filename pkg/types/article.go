package types

import "time"

// Article is the canonical, persisted encyclopedia entry for a title. Exactly
// one Article exists per canonical title within a world; alias titles never
// get an Article of their own.
type Article struct {
	ID    string `json:"id"`
	World string `json:"world"`
	Title string `json:"title"`

	Summary string `json:"summary"`
	Content string `json:"content"`

	// ImageRef is empty until the background image stage succeeds.
	ImageRef     string `json:"image_ref,omitempty"`
	ImageCaption string `json:"image_caption,omitempty"`

	// ChronologyDisplay is the in-world date string from the plan, if any.
	ChronologyDisplay string `json:"chronology_display,omitempty"`

	RelatedEntities []RelatedEntity `json:"related_entities"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArticleUpdate carries the mutable fields of an Article. Nil fields are left
// untouched.
type ArticleUpdate struct {
	Summary      *string
	Content      *string
	ImageRef     *string
	ImageCaption *string
}
