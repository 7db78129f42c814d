// Package engine implements article generation for a world: title
// resolution against existing articles and aliases, the plan → write →
// validate → persist pipeline, background image synthesis, validated edits,
// mention scanning and world design.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrResolutionInconsistency indicates that an alias or a semantic match
	// points at a canonical title that has no article. The request is
	// aborted; the inconsistency is never repaired by generating a duplicate.
	ErrResolutionInconsistency = errors.New("resolution inconsistency")

	// ErrPlanGeneration indicates that the plan could not be produced or
	// decoded. Nothing has been persisted and the request may be retried.
	ErrPlanGeneration = errors.New("plan generation failed")

	// ErrWriteGeneration indicates that article content could not be
	// produced. Nothing has been persisted and the request may be retried.
	ErrWriteGeneration = errors.New("write generation failed")

	// ErrEmptyTitle indicates a title that is empty after normalization.
	ErrEmptyTitle = errors.New("title is empty")
)

// ValidationUnavailableIssue is the warning recorded when the consistency
// checker cannot be reached and content is accepted unchecked.
const ValidationUnavailableIssue = "Validation service unavailable. Proceed with caution."

// InconsistencyError describes an alias whose target article is missing.
type InconsistencyError struct {
	World  string
	Alias  string
	Target string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("world %s: %q resolves to %q, which has no article", e.World, e.Alias, e.Target)
}

// Unwrap lets errors.Is match ErrResolutionInconsistency.
func (e *InconsistencyError) Unwrap() error {
	return ErrResolutionInconsistency
}
