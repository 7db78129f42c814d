package engine

import (
	"context"
	"strings"

	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/pkg/types"
)

// Validator asks the text generator whether content is consistent with a
// world. It fails open: when the checker cannot be reached the content is
// reported valid with ValidationUnavailableIssue.
type Validator struct {
	text llm.TextGenerator
	log  *logger.Logger
}

// NewValidator returns a validator using text.
func NewValidator(text llm.TextGenerator, log *logger.Logger) *Validator {
	return &Validator{text: text, log: log}
}

// ValidationRequest is one consistency check.
type ValidationRequest struct {
	WorldDescription string
	Snippets         []string

	// OldContent is set when checking an edit.
	OldContent string
	Content    string
	Model      string
}

// Check runs the consistency check.
func (v *Validator) Check(ctx context.Context, req ValidationRequest) types.ValidationResult {
	var result types.ValidationResult
	err := v.text.GenerateStructured(ctx, llm.TextRequest{
		System: validatorSystemPrompt,
		Prompt: buildValidationPrompt(req.WorldDescription, req.Snippets, req.OldContent, req.Content),
		Model:  req.Model,
	}, validationSchema, &result)
	if err != nil {
		v.log.Warn("consistency check unavailable, accepting content", "error", err)
		return types.ValidationResult{IsValid: true, Issues: []string{ValidationUnavailableIssue}}
	}
	if result.IsValid {
		// A passing verdict may still list nits; they are not issues.
		result.Issues = nil
	}
	return result
}

// ValidationOutcome is the terminal state of the validate/rewrite loop.
type ValidationOutcome string

const (
	// OutcomeSkipped means validation was not requested.
	OutcomeSkipped ValidationOutcome = "skipped"

	// OutcomeAccepted means the checker passed the content.
	OutcomeAccepted ValidationOutcome = "accepted"

	// OutcomeAcceptedWithWarnings means the content is published despite
	// open issues: the retry bound was reached, a rewrite failed, or the
	// checker was unavailable.
	OutcomeAcceptedWithWarnings ValidationOutcome = "accepted_with_warnings"
)

type validationState int

const (
	stateValidating validationState = iota
	stateRewriting
	stateAccepted
	stateAcceptedWithWarnings
)

// validationLoop drives validating → rewriting → validating … until the
// content is accepted or maxValidations checks have run.
type validationLoop struct {
	maxValidations int
	validate       func(ctx context.Context, content string) types.ValidationResult
	rewrite        func(ctx context.Context, content string, issues []string) (string, error)
	log            *logger.Logger
}

// loopResult is what the loop settled on.
type loopResult struct {
	Content     string
	Outcome     ValidationOutcome
	Issues      []string
	Validations int
	Rewrites    int
}

func (l *validationLoop) run(ctx context.Context, content string) loopResult {
	res := loopResult{Content: content}
	state := stateValidating

	for {
		switch state {
		case stateValidating:
			res.Validations++
			verdict := l.validate(ctx, res.Content)
			res.Issues = verdict.Issues
			switch {
			case verdict.IsValid && len(verdict.Issues) == 0:
				state = stateAccepted
			case verdict.IsValid:
				state = stateAcceptedWithWarnings
			case res.Validations >= l.maxValidations:
				l.log.Warn("validation retries exhausted, accepting best effort content",
					"validations", res.Validations, "issues", len(res.Issues))
				state = stateAcceptedWithWarnings
			default:
				state = stateRewriting
			}

		case stateRewriting:
			res.Rewrites++
			rewritten, err := l.rewrite(ctx, res.Content, res.Issues)
			if err != nil {
				l.log.Warn("rewrite failed, accepting previous content", "error", err)
				state = stateAcceptedWithWarnings
				continue
			}
			if strings.TrimSpace(rewritten) != "" {
				res.Content = rewritten
			}
			state = stateValidating

		case stateAccepted:
			res.Outcome = OutcomeAccepted
			return res

		case stateAcceptedWithWarnings:
			res.Outcome = OutcomeAcceptedWithWarnings
			return res
		}
	}
}
