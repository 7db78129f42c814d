package types

// TimelineEvent is a chronologically sortable projection of a graph node.
// It is derived on read and never stored.
type TimelineEvent struct {
	Name        string  `json:"name"`
	YearNumeric float64 `json:"year_numeric"`
	DisplayDate string  `json:"display_date"`
	Description string  `json:"description"`
}
