package types

// Node is a named entity in a world's knowledge graph. Name is the key and is
// case-sensitive; it doubles as the join key with Article records.
type Node struct {
	Name       string         `json:"name"`
	Type       NodeType       `json:"type"`
	Attributes NodeAttributes `json:"attributes"`
}

// NodeAttributesVersion is the attribute schema version written by this
// package. Version 1 is the legacy flat map carrying a scalar "year".
const NodeAttributesVersion = 2

// NodeAttributes is the narrow attribute schema shared by every node type.
// Chronology fields are only meaningful on Event nodes and on Article nodes
// whose subject is itself an event.
type NodeAttributes struct {
	// Description is a short human-readable description. For chronology
	// bearing nodes it is the timeline event text.
	Description string `json:"description,omitempty"`

	// YearNumeric is the sortable chronology value. Fractions encode sub-year
	// positions (2024.5 is mid-2024); negative values predate the epoch.
	YearNumeric *float64 `json:"year_numeric,omitempty"`

	// DisplayDate is the in-world rendering of the date ("Stardate 4523.1").
	DisplayDate string `json:"display_date,omitempty"`

	// LegacyYear holds the raw value of a version 1 "year" attribute.
	LegacyYear string `json:"year,omitempty"`
}

// HasChronology reports whether the attributes carry any chronology data.
func (a NodeAttributes) HasChronology() bool {
	return a.YearNumeric != nil || a.LegacyYear != ""
}

// IsZero reports whether no attribute is set.
func (a NodeAttributes) IsZero() bool {
	return a.Description == "" && a.YearNumeric == nil && a.DisplayDate == "" && a.LegacyYear == ""
}

// Merge overlays every set field of other onto a (last write wins) and
// returns the result. Unset fields in other never clear fields in a.
func (a NodeAttributes) Merge(other NodeAttributes) NodeAttributes {
	if other.Description != "" {
		a.Description = other.Description
	}
	if other.YearNumeric != nil {
		v := *other.YearNumeric
		a.YearNumeric = &v
	}
	if other.DisplayDate != "" {
		a.DisplayDate = other.DisplayDate
	}
	if other.LegacyYear != "" {
		a.LegacyYear = other.LegacyYear
	}
	return a
}

// Year returns a pointer to v, for building NodeAttributes literals.
func Year(v float64) *float64 {
	return &v
}
