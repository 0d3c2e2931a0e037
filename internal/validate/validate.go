// Package validate maps error types to validation categories and runs
// post-correction checks over corrected content.
package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/mend/internal/detector"
	"github.com/steveyegge/mend/internal/types"
)

// CategoryFor returns the validation category that covers an error type.
// Error types without a dedicated category fall back to general.
func CategoryFor(errType types.ErrorType) types.ValidationCategory {
	switch errType {
	case types.ErrorTypeSyntax:
		return types.CategorySyntax
	case types.ErrorTypeType:
		return types.CategoryTypes
	case types.ErrorTypeLogic, types.ErrorTypeContextMismatch:
		return types.CategorySemantics
	case types.ErrorTypeSecurity:
		return types.CategorySecurity
	case types.ErrorTypePerformance:
		return types.CategoryPerformance
	case types.ErrorTypeTestFailure:
		return types.CategoryTests
	case types.ErrorTypeBuildFailure:
		return types.CategoryBuild
	case types.ErrorTypeRuntime:
		return types.CategoryRuntime
	case types.ErrorTypeStyle:
		return types.CategoryStyle
	default:
		return types.CategoryGeneral
	}
}

// Func is the externally supplied validator procedure: it checks content
// against one validation category and returns a single check. It should
// return an error only when the check itself could not run.
type Func func(ctx context.Context, content string, category types.ValidationCategory) (types.ValidationCheck, error)

// Validator runs validation checks. The zero value is not usable; build
// one with New.
type Validator struct {
	suite  *detector.Suite
	custom Func
}

// New creates a validator backed by a detector suite. If custom is
// non-nil it is consulted for single-error validation instead of the
// detector pass.
func New(suite *detector.Suite, custom Func) *Validator {
	return &Validator{suite: suite, custom: custom}
}

// Check runs the external validator procedure for one category and
// returns its check. Only valid when a custom procedure is configured.
func (v *Validator) Check(ctx context.Context, content string, category types.ValidationCategory) (types.ValidationCheck, error) {
	if v.custom == nil {
		return types.ValidationCheck{}, fmt.Errorf("no validator procedure configured for %s check", category)
	}
	check, err := v.custom(ctx, content, category)
	if err != nil {
		return types.ValidationCheck{}, fmt.Errorf("%s check: %w", category, err)
	}
	return check, nil
}

// HasCustom reports whether an external validator procedure is configured.
func (v *Validator) HasCustom() bool {
	return v.custom != nil
}

// Validate checks whether content is free of the given error type. When
// an external procedure is configured its single check for the mapped
// category is wrapped into the result; otherwise the detector suite is
// re-run and the result passes only if no finding of that type remains.
func (v *Validator) Validate(ctx context.Context, content string, errType types.ErrorType) (types.ValidationResult, error) {
	category := CategoryFor(errType)

	if v.custom != nil {
		check, err := v.Check(ctx, content, category)
		if err != nil {
			return types.ValidationResult{}, fmt.Errorf("validation for %s: %w", errType, err)
		}
		return types.ValidationResult{
			Passed:  check.Passed,
			Checks:  []types.ValidationCheck{check},
			Message: check.Message,
		}, nil
	}

	findings, err := v.suite.Detect(ctx, content)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("validation for %s: %w", errType, err)
	}

	check := types.ValidationCheck{
		Name:     fmt.Sprintf("no remaining %s", errType),
		Category: category,
		Passed:   true,
	}
	for _, f := range findings {
		if f.Type == errType {
			check.Passed = false
			check.Message = f.Description
			break
		}
	}
	return types.ValidationResult{
		Passed: check.Passed,
		Checks: []types.ValidationCheck{check},
	}, nil
}

// ValidateContent runs a full detector pass and reports one check per
// category that produced findings, plus passing checks for the core
// categories that stayed clean.
func (v *Validator) ValidateContent(ctx context.Context, content string) (types.ValidationResult, error) {
	findings, err := v.suite.Detect(ctx, content)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("content validation: %w", err)
	}

	failures := map[types.ValidationCategory]string{}
	for _, f := range findings {
		cat := CategoryFor(f.Type)
		if _, seen := failures[cat]; !seen {
			failures[cat] = f.Description
		}
	}

	core := []types.ValidationCategory{
		types.CategorySyntax,
		types.CategorySecurity,
		types.CategoryGeneral,
	}
	seen := map[types.ValidationCategory]bool{}
	var checks []types.ValidationCheck
	add := func(cat types.ValidationCategory) {
		if seen[cat] {
			return
		}
		seen[cat] = true
		msg, failed := failures[cat]
		checks = append(checks, types.ValidationCheck{
			Name:     fmt.Sprintf("%s check", cat),
			Category: cat,
			Passed:   !failed,
			Message:  msg,
		})
	}
	for _, cat := range core {
		add(cat)
	}
	extra := make([]types.ValidationCategory, 0, len(failures))
	for cat := range failures {
		extra = append(extra, cat)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, cat := range extra {
		add(cat)
	}

	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
			break
		}
	}
	result := types.ValidationResult{Passed: passed, Checks: checks}
	if !passed {
		result.Message = fmt.Sprintf("%d findings remain", len(findings))
	}
	return result, nil
}
