// Package engine drives the detect, correct, validate loop over generated
// content: single attempts, full severity-ordered passes, and bounded
// iterative refinement.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/steveyegge/mend/internal/detector"
	"github.com/steveyegge/mend/internal/events"
	"github.com/steveyegge/mend/internal/session"
	"github.com/steveyegge/mend/internal/strategy"
	"github.com/steveyegge/mend/internal/types"
	"github.com/steveyegge/mend/internal/validate"
)

// CorrectorFunc is the externally supplied correction procedure. It
// receives the error to fix, the current content, and the chosen
// strategy, and returns the corrected content. It must be safe to retry.
type CorrectorFunc func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error)

// Options configures a new engine.
type Options struct {
	// Detector configures the heuristic detector suite.
	Detector detector.Config
	// Correction holds the caps and toggles for the orchestration loop.
	Correction types.CorrectionConfig
	// Corrector is the external correction procedure. Required.
	Corrector CorrectorFunc
	// Validator is the external validation procedure. Optional; when nil
	// the detector suite is re-run as the validation check.
	Validator validate.Func
	// Limiter throttles corrector invocations. Optional.
	Limiter *rate.Limiter
	// AttemptTimeout bounds a single corrector invocation. Zero means no
	// deadline beyond the caller's context.
	AttemptTimeout time.Duration
}

// Engine owns the session store, detector suite, validator, and event
// bus for one correction service instance. Construct with New; every
// caller shares the instance by handle, there is no global state.
type Engine struct {
	store     *session.Store
	suite     *detector.Suite
	validator *validate.Validator
	bus       *events.Bus
	corrector CorrectorFunc
	config    types.CorrectionConfig
	limiter   *rate.Limiter
	timeout   time.Duration
}

// New creates an engine from options. The correction config is validated
// up front so the loop never has to re-check caps for sanity.
func New(opts Options) (*Engine, error) {
	if opts.Corrector == nil {
		return nil, fmt.Errorf("corrector procedure is required")
	}
	if err := opts.Correction.Validate(); err != nil {
		return nil, fmt.Errorf("invalid correction config: %w", err)
	}
	suite, err := detector.NewSuite(opts.Detector)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:     session.NewStore(),
		suite:     suite,
		validator: validate.New(suite, opts.Validator),
		bus:       events.NewBus(),
		corrector: opts.Corrector,
		config:    opts.Correction,
		limiter:   opts.Limiter,
		timeout:   opts.AttemptTimeout,
	}, nil
}

// Subscribe registers an event listener for all correction lifecycle
// events.
func (e *Engine) Subscribe(fn events.Listener) *events.Subscription {
	return e.bus.Subscribe(fn)
}

// CreateSession starts a new correction session for a task.
func (e *Engine) CreateSession(taskID string) (*types.CorrectionSession, error) {
	return e.store.Create(taskID, e.config)
}

// Session returns a copy of a session by id.
func (e *Engine) Session(id string) (*types.CorrectionSession, bool) {
	return e.store.Get(id)
}

// DetectErrors runs the detector suite over content, appends the
// findings to the session's error list, and emits an ErrorDetected event
// per finding.
func (e *Engine) DetectErrors(ctx context.Context, sessionID, content string) ([]types.DetectedError, error) {
	findings, err := e.suite.Detect(ctx, content)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.Update(sessionID, func(s *types.CorrectionSession) error {
		s.Errors = append(s.Errors, findings...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("record findings: %w", err)
	}
	for _, f := range findings {
		e.bus.Publish(events.NewErrorDetected(sessionID, f))
	}
	return findings, nil
}

// CorrectError runs one correction attempt against a single error. It
// returns nil when there is nothing to do: unknown session or error id,
// a session already ended, or the per-error attempt cap reached. A
// corrector failure never propagates; it is recorded as a FAILED attempt.
// Pass an empty strategy to let the engine choose: the error type's
// default on the first attempt, then the escalation ladder on retries
// rather than the per-type default again, so repeated failures move to
// progressively broader strategies.
func (e *Engine) CorrectError(ctx context.Context, sessionID, errorID, content string, override types.Strategy) *types.CorrectionAttempt {
	sess, ok := e.store.Get(sessionID)
	if !ok || sess.Status.IsTerminal() {
		return nil
	}
	var target *types.DetectedError
	for i := range sess.Errors {
		if sess.Errors[i].ID == errorID {
			target = &sess.Errors[i]
			break
		}
	}
	if target == nil {
		return nil
	}

	prior := sess.AttemptsForError(errorID)
	if prior >= sess.Config.MaxAttemptsPerError {
		return nil
	}

	strat := e.resolveStrategy(*target, override, prior)

	attempt := types.CorrectionAttempt{
		ID:              uuid.New().String(),
		ErrorID:         errorID,
		Strategy:        strat,
		OriginalContent: content,
		Status:          types.AttemptPending,
		AttemptNumber:   prior + 1,
		StartedAt:       time.Now(),
	}

	// Re-check the cap inside the store's write lock so two concurrent
	// callers cannot both append attempt N+1.
	if _, err := e.store.Update(sessionID, func(s *types.CorrectionSession) error {
		if s.AttemptsForError(errorID) >= s.Config.MaxAttemptsPerError {
			return fmt.Errorf("attempt limit reached for error %s", errorID)
		}
		s.Attempts = append(s.Attempts, attempt)
		return nil
	}); err != nil {
		return nil
	}
	e.bus.Publish(events.NewCorrectionStarted(sessionID, errorID, strat, attempt.AttemptNumber))

	e.transitionAttempt(sessionID, attempt.ID, func(a *types.CorrectionAttempt) {
		a.Status = types.AttemptInProgress
	})

	corrected, corrErr := e.applyCorrector(ctx, *target, content, strat)
	if corrErr != nil {
		return e.finishAttempt(sessionID, attempt.ID, errorID, strat, failedOutcome(corrErr.Error()))
	}

	outcome := e.validateCorrection(ctx, *target, corrected, sess.Config)
	return e.finishAttempt(sessionID, attempt.ID, errorID, strat, outcome)
}

// resolveStrategy picks the strategy for the next attempt: an explicit
// override wins, the error type's default is used for the first attempt,
// and the escalation ladder takes over on retries.
func (e *Engine) resolveStrategy(target types.DetectedError, override types.Strategy, prior int) types.Strategy {
	if override.IsValid() {
		return override
	}
	if prior == 0 {
		return strategy.DefaultStrategy(target.Type)
	}
	return strategy.Suggest(target, prior)
}

// attemptOutcome is the terminal disposition of one attempt.
type attemptOutcome struct {
	status    types.AttemptStatus
	corrected string
	result    *types.ValidationResult
}

func failedOutcome(reason string) attemptOutcome {
	return attemptOutcome{
		status: types.AttemptFailed,
		result: &types.ValidationResult{Passed: false, Message: reason},
	}
}

// applyCorrector invokes the external corrector with the configured rate
// limit and deadline. Panics are recovered into errors; a deadline expiry
// aborts the attempt rather than blocking.
func (e *Engine) applyCorrector(ctx context.Context, target types.DetectedError, content string, strat types.Strategy) (string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("corrector rate limit: %w", err)
		}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("corrector panicked: %v", r)}
			}
		}()
		c, err := e.corrector(ctx, target, content, strat)
		done <- outcome{content: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("corrector aborted: %w", ctx.Err())
	case out := <-done:
		return out.content, out.err
	}
}

// validateCorrection decides the attempt's terminal state from the
// corrected content. Validation failures keep or discard the corrected
// text depending on RollbackOnFailure.
func (e *Engine) validateCorrection(ctx context.Context, target types.DetectedError, corrected string, cfg types.CorrectionConfig) attemptOutcome {
	if !cfg.ValidateAfterCorrection {
		return attemptOutcome{status: types.AttemptSucceeded, corrected: corrected}
	}

	result, err := e.validator.Validate(ctx, corrected, target.Type)
	if err != nil {
		return failedOutcome(err.Error())
	}
	if result.Passed && cfg.RunTestsOnCorrection && e.validator.HasCustom() {
		check, err := e.validator.Check(ctx, corrected, types.CategoryTests)
		if err != nil {
			return failedOutcome(err.Error())
		}
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
			result.Message = check.Message
		}
	}

	if result.Passed {
		return attemptOutcome{status: types.AttemptSucceeded, corrected: corrected, result: &result}
	}
	if result.Message == "" {
		result.Message = "validation failed after correction"
	}
	out := attemptOutcome{status: types.AttemptFailed, result: &result}
	if !cfg.RollbackOnFailure {
		out.corrected = corrected
	}
	return out
}

// transitionAttempt applies a mutation to one attempt inside the
// session's write lock, honoring the attempt state machine.
func (e *Engine) transitionAttempt(sessionID, attemptID string, mutate func(*types.CorrectionAttempt)) *types.CorrectionSession {
	updated, err := e.store.Update(sessionID, func(s *types.CorrectionSession) error {
		for i := range s.Attempts {
			if s.Attempts[i].ID != attemptID {
				continue
			}
			before := s.Attempts[i].Status
			mutate(&s.Attempts[i])
			after := s.Attempts[i].Status
			if after != before && !before.CanTransitionTo(after) {
				return fmt.Errorf("invalid attempt transition %s -> %s", before, after)
			}
			return nil
		}
		return fmt.Errorf("attempt %s not found", attemptID)
	})
	if err != nil {
		return nil
	}
	return updated
}

// finishAttempt records the terminal state, emits the matching event,
// and returns the stored attempt.
func (e *Engine) finishAttempt(sessionID, attemptID, errorID string, strat types.Strategy, out attemptOutcome) *types.CorrectionAttempt {
	now := time.Now()
	updated := e.transitionAttempt(sessionID, attemptID, func(a *types.CorrectionAttempt) {
		a.Status = out.status
		a.CorrectedContent = out.corrected
		a.ValidationResult = out.result
		a.CompletedAt = &now
	})
	if updated == nil {
		return nil
	}

	if out.status == types.AttemptSucceeded {
		e.bus.Publish(events.NewCorrectionSucceeded(sessionID, errorID, attemptID, strat))
	} else {
		reason := ""
		if out.result != nil {
			reason = out.result.Message
		}
		e.bus.Publish(events.NewCorrectionFailed(sessionID, errorID, attemptID, strat, reason))
	}

	for i := range updated.Attempts {
		if updated.Attempts[i].ID == attemptID {
			return &updated.Attempts[i]
		}
	}
	return nil
}

// SkipAttempt marks a pending attempt skipped on an operator's behalf.
// The automatic loop never takes this path.
func (e *Engine) SkipAttempt(sessionID, attemptID string) error {
	return e.operatorTransition(sessionID, attemptID, types.AttemptSkipped)
}

// RollbackAttempt marks a succeeded attempt rolled back on an operator's
// behalf, returning its error to the uncorrected set.
func (e *Engine) RollbackAttempt(sessionID, attemptID string) error {
	return e.operatorTransition(sessionID, attemptID, types.AttemptRolledBack)
}

func (e *Engine) operatorTransition(sessionID, attemptID string, target types.AttemptStatus) error {
	_, err := e.store.Update(sessionID, func(s *types.CorrectionSession) error {
		for i := range s.Attempts {
			if s.Attempts[i].ID != attemptID {
				continue
			}
			from := s.Attempts[i].Status
			if !from.CanTransitionTo(target) {
				return fmt.Errorf("invalid attempt transition %s -> %s", from, target)
			}
			now := time.Now()
			s.Attempts[i].Status = target
			s.Attempts[i].CompletedAt = &now
			return nil
		}
		return fmt.Errorf("attempt %s not found", attemptID)
	})
	return err
}

// CorrectAllErrors corrects every detected error in the session in
// severity order, feeding each successful correction's output into the
// next, then validates the final content, ends the session, and returns
// the terminal result.
func (e *Engine) CorrectAllErrors(ctx context.Context, sessionID, content string) (*types.CorrectionResult, error) {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if sess.Status.IsTerminal() {
		return nil, fmt.Errorf("session %s already ended with status %s", sessionID, sess.Status)
	}

	final := e.correctPass(ctx, sess, content)
	return e.finalize(ctx, sessionID, content, final)
}

// correctPass runs one severity-ordered pass over the session's
// uncorrected errors and returns the running content.
func (e *Engine) correctPass(ctx context.Context, sess *types.CorrectionSession, content string) string {
	ordered := append([]types.DetectedError(nil), sess.UncorrectedErrors()...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity.Priority() > ordered[j].Severity.Priority()
	})

	running := content
	for _, detected := range ordered {
		current, ok := e.store.Get(sess.ID)
		if !ok || current.MaxAttemptsReached() {
			break
		}
		if detected.Confidence < sess.Config.AutoCorrectThreshold {
			continue
		}
		attempt := e.CorrectError(ctx, sess.ID, detected.ID, running, "")
		if attempt != nil && attempt.Status == types.AttemptSucceeded {
			running = attempt.CorrectedContent
		}
	}
	return running
}

// finalize validates the final content, ends the session, emits the
// closing events, and snapshots the result.
func (e *Engine) finalize(ctx context.Context, sessionID, original, final string) (*types.CorrectionResult, error) {
	validation, err := e.validator.ValidateContent(ctx, final)
	if err != nil {
		return nil, fmt.Errorf("final validation: %w", err)
	}
	e.bus.Publish(events.NewValidationCompleted(sessionID, validation))

	sess, ok := e.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	success := sess.AllCorrected() && validation.Passed
	ended, _ := e.store.End(sessionID, success)
	if ended != nil {
		sess = ended
	}

	remaining := sess.UncorrectedErrors()
	result := &types.CorrectionResult{
		SessionID:       sessionID,
		Success:         success,
		OriginalContent: original,
		FinalContent:    final,
		ErrorsDetected:  len(sess.Errors),
		ErrorsCorrected: len(sess.Errors) - len(remaining),
		TotalAttempts:   len(sess.Attempts),
		FinalValidation: &validation,
		RemainingErrors: remaining,
		Duration:        time.Since(sess.CreatedAt),
	}
	e.bus.Publish(events.NewSessionCompleted(sessionID, success, result.ErrorsDetected, result.ErrorsCorrected))
	return result, nil
}

// IterativeCorrection creates a fresh session and runs up to
// maxIterations rounds of detect-then-correct, stopping early when a
// round detects nothing or every recorded error has been corrected. The
// loop does not detect cycles: a corrector that keeps reintroducing a
// defect runs until the iteration budget is spent.
func (e *Engine) IterativeCorrection(ctx context.Context, taskID, content string, maxIterations int) (*types.CorrectionResult, error) {
	if maxIterations < 1 {
		return nil, fmt.Errorf("max_iterations must be positive (got %d)", maxIterations)
	}
	if !e.config.EnableIterativeRefinement {
		maxIterations = 1
	}

	sess, err := e.CreateSession(taskID)
	if err != nil {
		return nil, err
	}

	running := content
	for i := 0; i < maxIterations; i++ {
		findings, err := e.DetectErrors(ctx, sess.ID, running)
		if err != nil {
			return nil, err
		}
		if len(findings) == 0 {
			break
		}

		current, ok := e.store.Get(sess.ID)
		if !ok {
			return nil, fmt.Errorf("session %s not found", sess.ID)
		}
		running = e.correctPass(ctx, current, running)

		current, _ = e.store.Get(sess.ID)
		if current != nil && (current.AllCorrected() || current.MaxAttemptsReached()) {
			break
		}
	}

	return e.finalize(ctx, sess.ID, content, running)
}

// Stats aggregates counters across every session the engine has seen.
func (e *Engine) Stats() types.Statistics {
	var stats types.Statistics
	for _, sess := range e.store.All() {
		stats.TotalSessions++
		switch sess.Status {
		case types.SessionActive:
			stats.ActiveSessions++
		case types.SessionCompleted:
			stats.CompletedSessions++
		case types.SessionFailed:
			stats.FailedSessions++
		}
		stats.TotalErrors += len(sess.Errors)
		stats.TotalAttempts += len(sess.Attempts)
		for _, a := range sess.Attempts {
			switch a.Status {
			case types.AttemptSucceeded:
				stats.SucceededAttempts++
			case types.AttemptFailed:
				stats.FailedAttempts++
			}
		}
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SucceededAttempts) / float64(stats.TotalAttempts)
	}
	return stats
}
