package types

import (
	"fmt"
	"time"
)

// ErrorType categorizes the kind of defect detected in generated content
type ErrorType string

const (
	ErrorTypeSyntax             ErrorType = "syntax_error"
	ErrorTypeLogic              ErrorType = "logic_error"
	ErrorTypeType               ErrorType = "type_error"
	ErrorTypeMissingImport      ErrorType = "missing_import"
	ErrorTypeUndefinedReference ErrorType = "undefined_reference"
	ErrorTypeAPIMisuse          ErrorType = "api_misuse"
	ErrorTypeHallucination      ErrorType = "hallucination"
	ErrorTypeSecurity           ErrorType = "security_issue"
	ErrorTypePerformance        ErrorType = "performance_issue"
	ErrorTypeStyle              ErrorType = "style_violation"
	ErrorTypeIncomplete         ErrorType = "incomplete_response"
	ErrorTypeContextMismatch    ErrorType = "context_mismatch"
	ErrorTypeTestFailure        ErrorType = "test_failure"
	ErrorTypeBuildFailure       ErrorType = "build_failure"
	ErrorTypeRuntime            ErrorType = "runtime_error"
)

// IsValid checks if the error type value is valid
func (t ErrorType) IsValid() bool {
	switch t {
	case ErrorTypeSyntax, ErrorTypeLogic, ErrorTypeType, ErrorTypeMissingImport,
		ErrorTypeUndefinedReference, ErrorTypeAPIMisuse, ErrorTypeHallucination,
		ErrorTypeSecurity, ErrorTypePerformance, ErrorTypeStyle, ErrorTypeIncomplete,
		ErrorTypeContextMismatch, ErrorTypeTestFailure, ErrorTypeBuildFailure,
		ErrorTypeRuntime:
		return true
	}
	return false
}

// ErrorSeverity represents how serious a detected error is.
// Ordering: critical > high > medium > low > info.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// IsValid checks if the severity value is valid
func (s ErrorSeverity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Priority returns the numeric rank used for ordering corrections.
// Higher values are corrected first.
func (s ErrorSeverity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RequiresCorrection reports whether errors at this severity must be
// corrected before a session can complete. Low and info findings are
// advisory only.
func (s ErrorSeverity) RequiresCorrection() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium:
		return true
	}
	return false
}

// HighConfidenceThreshold is the confidence at or above which a finding
// is considered high confidence.
const HighConfidenceThreshold = 0.8

// DetectedError represents a single heuristically-identified defect in
// generated content.
type DetectedError struct {
	ID           string        `json:"id"`
	Type         ErrorType     `json:"type"`
	Severity     ErrorSeverity `json:"severity"`
	Description  string        `json:"description"`
	Location     string        `json:"location,omitempty"`
	SuggestedFix string        `json:"suggested_fix,omitempty"`
	Confidence   float64       `json:"confidence"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Validate checks if the detected error has valid field values
func (e *DetectedError) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid error type: %s", e.Type)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", e.Severity)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %f)", e.Confidence)
	}
	return nil
}

// IsHighConfidence reports whether the finding meets the high-confidence threshold
func (e *DetectedError) IsHighConfidence() bool {
	return e.Confidence >= HighConfidenceThreshold
}

// Strategy is a named remediation approach applied by the corrector
type Strategy string

const (
	StrategyTargetedFix           Strategy = "targeted_fix"
	StrategyAddMissing            Strategy = "add_missing"
	StrategyContinueGeneration    Strategy = "continue_generation"
	StrategyRegenerateSection     Strategy = "regenerate_section"
	StrategyRegenerateWithContext Strategy = "regenerate_with_context"
	StrategyIterativeRefinement   Strategy = "iterative_refinement"
	StrategyFullRegeneration      Strategy = "full_regeneration"
)

// IsValid checks if the strategy value is valid
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyTargetedFix, StrategyAddMissing, StrategyContinueGeneration,
		StrategyRegenerateSection, StrategyRegenerateWithContext,
		StrategyIterativeRefinement, StrategyFullRegeneration:
		return true
	}
	return false
}

// CostLevel returns the relative cost of applying this strategy (0-5).
// Used for reporting only, never for selection.
func (s Strategy) CostLevel() int {
	switch s {
	case StrategyTargetedFix, StrategyAddMissing:
		return 1
	case StrategyContinueGeneration:
		return 2
	case StrategyRegenerateSection:
		return 3
	case StrategyRegenerateWithContext, StrategyIterativeRefinement:
		return 4
	case StrategyFullRegeneration:
		return 5
	default:
		return 0
	}
}

// AttemptStatus represents the state of a correction attempt
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"     // Created, not yet started
	AttemptInProgress AttemptStatus = "in_progress" // Corrector is running
	AttemptSucceeded  AttemptStatus = "succeeded"   // Correction applied and validated
	AttemptFailed     AttemptStatus = "failed"      // Corrector or validation failed (terminal)
	AttemptSkipped    AttemptStatus = "skipped"     // Operator skipped this attempt
	AttemptRolledBack AttemptStatus = "rolled_back" // Operator rolled back a succeeded attempt
)

// IsValid checks if the attempt status value is valid
func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptPending, AttemptInProgress, AttemptSucceeded, AttemptFailed,
		AttemptSkipped, AttemptRolledBack:
		return true
	}
	return false
}

// ValidTransitions defines the valid state transitions for the attempt
// state machine.
//
// State Machine Diagram:
//
//	pending → in_progress → succeeded → rolled_back
//	    ↓          ↓            ↑ (operator only)
//	 skipped     failed
//
// The automatic loop only exercises pending → in_progress → {succeeded, failed}.
// skipped and rolled_back are reachable only through operator-driven paths.
// A terminal status is immutable once set.
func (s AttemptStatus) ValidTransitions() []AttemptStatus {
	switch s {
	case AttemptPending:
		return []AttemptStatus{AttemptInProgress, AttemptSkipped}
	case AttemptInProgress:
		return []AttemptStatus{AttemptSucceeded, AttemptFailed}
	case AttemptSucceeded:
		return []AttemptStatus{AttemptRolledBack}
	default:
		return []AttemptStatus{} // failed, skipped, rolled_back are terminal
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s AttemptStatus) CanTransitionTo(target AttemptStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from this status
func (s AttemptStatus) IsTerminal() bool {
	return len(s.ValidTransitions()) == 0
}

// CorrectionAttempt represents one application of a strategy to fix one error
type CorrectionAttempt struct {
	ID               string            `json:"id"`
	ErrorID          string            `json:"error_id"`
	Strategy         Strategy          `json:"strategy"`
	OriginalContent  string            `json:"original_content"`
	CorrectedContent string            `json:"corrected_content,omitempty"`
	Status           AttemptStatus     `json:"status"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	AttemptNumber    int               `json:"attempt_number"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// Validate checks if the correction attempt has valid field values
func (a *CorrectionAttempt) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.ErrorID == "" {
		return fmt.Errorf("error_id is required")
	}
	if !a.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", a.Strategy)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("attempt_number must be positive (got %d)", a.AttemptNumber)
	}
	return nil
}

// SessionStatus represents the lifecycle state of a correction session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsValid checks if the session status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the session has finished
func (s SessionStatus) IsTerminal() bool {
	return s != SessionActive
}

// CorrectionConfig holds the caps and feature toggles consumed by the orchestrator
type CorrectionConfig struct {
	// MaxAttempts is the session-wide cap on correction attempts
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// MaxAttemptsPerError caps attempts against a single error
	MaxAttemptsPerError int `yaml:"max_attempts_per_error" json:"max_attempts_per_error"`
	// AutoCorrectThreshold is the minimum confidence for automatic correction
	AutoCorrectThreshold float64 `yaml:"auto_correct_threshold" json:"auto_correct_threshold"`
	// EnableIterativeRefinement allows multi-round detect/correct loops
	EnableIterativeRefinement bool `yaml:"enable_iterative_refinement" json:"enable_iterative_refinement"`
	// ValidateAfterCorrection runs validation against each corrected output
	ValidateAfterCorrection bool `yaml:"validate_after_correction" json:"validate_after_correction"`
	// RunTestsOnCorrection requests the TESTS validation category after correction
	RunTestsOnCorrection bool `yaml:"run_tests_on_correction" json:"run_tests_on_correction"`
	// RollbackOnFailure discards corrected content when validation fails
	RollbackOnFailure bool `yaml:"rollback_on_failure" json:"rollback_on_failure"`
}

// DefaultCorrectionConfig returns the default configuration
func DefaultCorrectionConfig() CorrectionConfig {
	return CorrectionConfig{
		MaxAttempts:               10,
		MaxAttemptsPerError:       3,
		AutoCorrectThreshold:      0.7,
		EnableIterativeRefinement: true,
		ValidateAfterCorrection:   true,
		RunTestsOnCorrection:      false,
		RollbackOnFailure:         true,
	}
}

// Validate checks if the configuration has valid field values
func (c *CorrectionConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive (got %d)", c.MaxAttempts)
	}
	if c.MaxAttemptsPerError < 1 {
		return fmt.Errorf("max_attempts_per_error must be positive (got %d)", c.MaxAttemptsPerError)
	}
	if c.MaxAttemptsPerError > c.MaxAttempts {
		return fmt.Errorf("max_attempts_per_error (%d) cannot exceed max_attempts (%d)",
			c.MaxAttemptsPerError, c.MaxAttempts)
	}
	if c.AutoCorrectThreshold < 0 || c.AutoCorrectThreshold > 1 {
		return fmt.Errorf("auto_correct_threshold must be between 0.0 and 1.0 (got %f)", c.AutoCorrectThreshold)
	}
	return nil
}

// CorrectionSession groups all errors and attempts for one piece of content
// under one configuration. Sessions are mutated only through the engine;
// Version increments on every committed update.
type CorrectionSession struct {
	ID        string              `json:"id"`
	TaskID    string              `json:"task_id"`
	Errors    []DetectedError     `json:"errors"`
	Attempts  []CorrectionAttempt `json:"attempts"`
	Status    SessionStatus       `json:"status"`
	Config    CorrectionConfig    `json:"config"`
	CreatedAt time.Time           `json:"created_at"`
	Version   int64               `json:"version"`
}

// Clone returns a deep copy of the session. The store hands out copies so
// callers can never mutate the stored value in place.
func (s *CorrectionSession) Clone() *CorrectionSession {
	clone := *s
	clone.Errors = make([]DetectedError, len(s.Errors))
	copy(clone.Errors, s.Errors)
	clone.Attempts = make([]CorrectionAttempt, len(s.Attempts))
	for i, a := range s.Attempts {
		clone.Attempts[i] = a
		if a.ValidationResult != nil {
			vr := *a.ValidationResult
			vr.Checks = make([]ValidationCheck, len(a.ValidationResult.Checks))
			copy(vr.Checks, a.ValidationResult.Checks)
			clone.Attempts[i].ValidationResult = &vr
		}
	}
	return &clone
}

// UncorrectedErrors returns the errors that have no succeeded attempt
func (s *CorrectionSession) UncorrectedErrors() []DetectedError {
	corrected := make(map[string]bool)
	for _, a := range s.Attempts {
		if a.Status == AttemptSucceeded {
			corrected[a.ErrorID] = true
		}
	}
	var remaining []DetectedError
	for _, e := range s.Errors {
		if !corrected[e.ID] {
			remaining = append(remaining, e)
		}
	}
	return remaining
}

// AllCorrected reports whether every detected error has a succeeded attempt
func (s *CorrectionSession) AllCorrected() bool {
	return len(s.UncorrectedErrors()) == 0
}

// MaxAttemptsReached reports whether the session-wide attempt cap is exhausted
func (s *CorrectionSession) MaxAttemptsReached() bool {
	return len(s.Attempts) >= s.Config.MaxAttempts
}

// AttemptsForError counts the attempts recorded against one error
func (s *CorrectionSession) AttemptsForError(errorID string) int {
	count := 0
	for _, a := range s.Attempts {
		if a.ErrorID == errorID {
			count++
		}
	}
	return count
}

// ValidationCategory is the dimension a post-correction check is scored against
type ValidationCategory string

const (
	CategorySyntax      ValidationCategory = "syntax"
	CategorySemantics   ValidationCategory = "semantics"
	CategoryTypes       ValidationCategory = "types"
	CategoryTests       ValidationCategory = "tests"
	CategoryBuild       ValidationCategory = "build"
	CategoryRuntime     ValidationCategory = "runtime"
	CategoryStyle       ValidationCategory = "style"
	CategorySecurity    ValidationCategory = "security"
	CategoryPerformance ValidationCategory = "performance"
	CategoryGeneral     ValidationCategory = "general"
)

// IsValid checks if the validation category value is valid
func (c ValidationCategory) IsValid() bool {
	switch c {
	case CategorySyntax, CategorySemantics, CategoryTypes, CategoryTests,
		CategoryBuild, CategoryRuntime, CategoryStyle, CategorySecurity,
		CategoryPerformance, CategoryGeneral:
		return true
	}
	return false
}

// ValidationCheck is a single named check result
type ValidationCheck struct {
	Name     string             `json:"name"`
	Passed   bool               `json:"passed"`
	Message  string             `json:"message,omitempty"`
	Category ValidationCategory `json:"category"`
}

// ValidationResult aggregates one or more checks into a pass/fail verdict
type ValidationResult struct {
	Passed  bool              `json:"passed"`
	Checks  []ValidationCheck `json:"checks"`
	Message string            `json:"message,omitempty"`
}

// PassRate returns the fraction of checks that passed. With zero checks the
// rate follows the overall verdict: 1.0 when passed, 0.0 otherwise.
func (r *ValidationResult) PassRate() float64 {
	if len(r.Checks) == 0 {
		if r.Passed {
			return 1.0
		}
		return 0.0
	}
	passed := 0
	for _, c := range r.Checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(r.Checks))
}

// CorrectionResult is the terminal snapshot of a session
type CorrectionResult struct {
	SessionID       string            `json:"session_id"`
	Success         bool              `json:"success"`
	OriginalContent string            `json:"original_content"`
	FinalContent    string            `json:"final_content"`
	ErrorsDetected  int               `json:"errors_detected"`
	ErrorsCorrected int               `json:"errors_corrected"`
	TotalAttempts   int               `json:"total_attempts"`
	FinalValidation *ValidationResult `json:"final_validation,omitempty"`
	RemainingErrors []DetectedError   `json:"remaining_errors,omitempty"`
	Duration        time.Duration     `json:"duration"`
}

// CorrectionRate returns the fraction of detected errors that were corrected
func (r *CorrectionResult) CorrectionRate() float64 {
	if r.ErrorsDetected == 0 {
		return 1.0
	}
	return float64(r.ErrorsCorrected) / float64(r.ErrorsDetected)
}

// ContentChanged reports whether correction produced different content
func (r *CorrectionResult) ContentChanged() bool {
	return r.OriginalContent != r.FinalContent
}

// Statistics provides aggregate counters across all sessions
type Statistics struct {
	TotalSessions     int     `json:"total_sessions"`
	ActiveSessions    int     `json:"active_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	FailedSessions    int     `json:"failed_sessions"`
	TotalErrors       int     `json:"total_errors"`
	TotalAttempts     int     `json:"total_attempts"`
	SucceededAttempts int     `json:"succeeded_attempts"`
	FailedAttempts    int     `json:"failed_attempts"`
	SuccessRate       float64 `json:"success_rate"`
}
