package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mend/internal/detector"
	"github.com/steveyegge/mend/internal/events"
	"github.com/steveyegge/mend/internal/types"
)

const cleanContent = "func add(a, b int) int {\n\treturn a + b\n}\n// complete, balanced, and long enough to pass every heuristic\n"

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Corrector == nil {
		opts.Corrector = func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return cleanContent, nil
		}
	}
	if opts.Detector == (detector.Config{}) {
		opts.Detector = detector.DefaultConfig()
	}
	if opts.Correction.MaxAttempts == 0 {
		opts.Correction = types.DefaultCorrectionConfig()
	}
	eng, err := New(opts)
	require.NoError(t, err)
	return eng
}

func seedErrors(t *testing.T, eng *Engine, sessionID string, errs ...types.DetectedError) {
	t.Helper()
	_, err := eng.store.Update(sessionID, func(s *types.CorrectionSession) error {
		s.Errors = append(s.Errors, errs...)
		return nil
	})
	require.NoError(t, err)
}

func seededError(id string, errType types.ErrorType, severity types.ErrorSeverity, confidence float64) types.DetectedError {
	return types.DetectedError{
		ID:          id,
		Type:        errType,
		Severity:    severity,
		Description: fmt.Sprintf("seeded %s", errType),
		Confidence:  confidence,
	}
}

func TestNewRequiresCorrector(t *testing.T) {
	_, err := New(Options{
		Detector:   detector.DefaultConfig(),
		Correction: types.DefaultCorrectionConfig(),
	})
	require.Error(t, err)
}

func TestDetectErrorsRecordsFindingsAndEmitsEvents(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)

	var detected []events.Event
	eng.Subscribe(func(e events.Event) {
		if e.Type() == events.EventErrorDetected {
			detected = append(detected, e)
		}
	})

	findings, err := eng.DetectErrors(context.Background(), sess.ID, "func broken() { return 1;")
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	stored, ok := eng.Session(sess.ID)
	require.True(t, ok)
	assert.Len(t, stored.Errors, len(findings))
	assert.Len(t, detected, len(findings))
}

func TestCorrectErrorSucceeds(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", "")
	require.NotNil(t, attempt)

	assert.Equal(t, types.AttemptSucceeded, attempt.Status)
	assert.Equal(t, cleanContent, attempt.CorrectedContent)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.NotNil(t, attempt.CompletedAt)
}

func TestCorrectErrorUnknownIDs(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)

	assert.Nil(t, eng.CorrectError(context.Background(), "no-such-session", "e1", "x", ""))
	assert.Nil(t, eng.CorrectError(context.Background(), sess.ID, "no-such-error", "x", ""))
}

func TestCorrectErrorPerErrorCap(t *testing.T) {
	cfg := types.DefaultCorrectionConfig()
	cfg.MaxAttemptsPerError = 3
	cfg.ValidateAfterCorrection = false
	eng := newTestEngine(t, Options{
		Correction: cfg,
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "", errors.New("still broken")
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeLogic, types.SeverityMedium, 0.9))

	for i := 1; i <= 3; i++ {
		attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")
		require.NotNil(t, attempt, "attempt %d", i)
		assert.Equal(t, i, attempt.AttemptNumber)
	}
	assert.Nil(t, eng.CorrectError(context.Background(), sess.ID, "e1", "content", ""),
		"call past the per-error cap should return nil")

	stored, _ := eng.Session(sess.ID)
	assert.Len(t, stored.Attempts, 3)
}

func TestCorrectErrorEscalatesStrategy(t *testing.T) {
	cfg := types.DefaultCorrectionConfig()
	cfg.ValidateAfterCorrection = false
	eng := newTestEngine(t, Options{
		Correction: cfg,
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "", errors.New("no luck")
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeHallucination, types.SeverityMedium, 0.9))

	first := eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")
	second := eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")
	third := eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")

	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotNil(t, third)
	assert.Equal(t, types.StrategyFullRegeneration, first.Strategy, "type default for hallucination")
	assert.Equal(t, types.StrategyRegenerateSection, second.Strategy, "ladder after one prior attempt")
	assert.Equal(t, types.StrategyFullRegeneration, third.Strategy, "ladder after two prior attempts")
}

func TestCorrectErrorHonorsOverride(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", types.StrategyIterativeRefinement)
	require.NotNil(t, attempt)
	assert.Equal(t, types.StrategyIterativeRefinement, attempt.Strategy)
}

func TestCorrectErrorRecoversCorrectorPanic(t *testing.T) {
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			panic("corrector blew up")
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	var attempt *types.CorrectionAttempt
	require.NotPanics(t, func() {
		attempt = eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")
	})
	require.NotNil(t, attempt)
	assert.Equal(t, types.AttemptFailed, attempt.Status)
	require.NotNil(t, attempt.ValidationResult)
	assert.Contains(t, attempt.ValidationResult.Message, "corrector blew up")
}

// A corrector that throws on every call: every attempt ends FAILED with a
// populated failure message and the session never completes.
func TestCorrectorAlwaysFailing(t *testing.T) {
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "", errors.New("permanently offline")
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID,
		seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9),
		seededError("e2", types.ErrorTypeSecurity, types.SeverityCritical, 0.9),
	)

	result, err := eng.CorrectAllErrors(context.Background(), sess.ID, cleanContent)
	require.NoError(t, err)

	assert.False(t, result.Success)
	stored, _ := eng.Session(sess.ID)
	assert.NotEqual(t, types.SessionCompleted, stored.Status)
	require.NotEmpty(t, stored.Attempts)
	for _, a := range stored.Attempts {
		assert.Equal(t, types.AttemptFailed, a.Status)
		require.NotNil(t, a.ValidationResult)
		assert.NotEmpty(t, a.ValidationResult.Message)
	}
}

// Two errors at HIGH and CRITICAL with a corrector that always works:
// the CRITICAL error is attempted first and the session converges.
func TestCorrectAllErrorsSeverityOrderAndSuccess(t *testing.T) {
	var order []string
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			order = append(order, detected.ID)
			return cleanContent, nil
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID,
		seededError("high", types.ErrorTypeSyntax, types.SeverityHigh, 0.9),
		seededError("critical", types.ErrorTypeSecurity, types.SeverityCritical, 0.9),
	)

	result, err := eng.CorrectAllErrors(context.Background(), sess.ID, "func broken() {")
	require.NoError(t, err)

	require.Equal(t, []string{"critical", "high"}, order)
	assert.True(t, result.Success)
	assert.Equal(t, result.ErrorsDetected, result.ErrorsCorrected)
	assert.Equal(t, 2, result.ErrorsDetected)
	assert.Empty(t, result.RemainingErrors)
	assert.Equal(t, cleanContent, result.FinalContent)
	assert.True(t, result.ContentChanged())

	stored, _ := eng.Session(sess.ID)
	assert.Equal(t, types.SessionCompleted, stored.Status)
}

func TestCorrectAllErrorsSkipsLowConfidence(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	// Default auto-correct threshold is 0.7.
	seedErrors(t, eng, sess.ID,
		seededError("weak", types.ErrorTypeHallucination, types.SeverityMedium, 0.6),
		seededError("strong", types.ErrorTypeSyntax, types.SeverityHigh, 0.9),
	)

	result, err := eng.CorrectAllErrors(context.Background(), sess.ID, "func broken() {")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ErrorsCorrected)
	require.Len(t, result.RemainingErrors, 1)
	assert.Equal(t, "weak", result.RemainingErrors[0].ID)

	stored, _ := eng.Session(sess.ID)
	assert.Len(t, stored.Attempts, 1, "no attempt is spent on a below-threshold error")
}

func TestCorrectAllErrorsRejectsEndedSession(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	_, err = eng.CorrectAllErrors(context.Background(), sess.ID, cleanContent)
	require.NoError(t, err)

	_, err = eng.CorrectAllErrors(context.Background(), sess.ID, cleanContent)
	require.Error(t, err)
}

func TestCorrectAllErrorsEmitsLifecycleEvents(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	var seen []events.EventType
	eng.Subscribe(func(e events.Event) { seen = append(seen, e.Type()) })

	_, err = eng.CorrectAllErrors(context.Background(), sess.ID, "func broken() {")
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventCorrectionStarted,
		events.EventCorrectionSucceeded,
		events.EventValidationCompleted,
		events.EventSessionCompleted,
	}, seen)
}

// An always-succeeding corrector converges in the first round.
func TestIterativeCorrectionConverges(t *testing.T) {
	eng := newTestEngine(t, Options{})

	result, err := eng.IterativeCorrection(context.Background(), "task-1", "func broken() { return 1;", 5)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.RemainingErrors)
	assert.Equal(t, cleanContent, result.FinalContent)
}

func TestIterativeCorrectionCleanInputIsANoop(t *testing.T) {
	calls := 0
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			calls++
			return cleanContent, nil
		},
	})

	result, err := eng.IterativeCorrection(context.Background(), "task-1", cleanContent, 3)
	require.NoError(t, err)

	assert.Equal(t, 0, calls)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ErrorsDetected)
	assert.False(t, result.ContentChanged())
}

// A corrector that never removes the triggering pattern: the loop runs
// until the session-wide attempt cap stops it and reports the leftovers.
func TestIterativeCorrectionExhaustsBudget(t *testing.T) {
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return content, nil // hands the broken content straight back
		},
	})

	// One unbalanced brace plus under-length content: two findings per round.
	result, err := eng.IterativeCorrection(context.Background(), "task-1", "func broken() { return 1;", 3)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.RemainingErrors)

	stored, ok := eng.Session(result.SessionID)
	require.True(t, ok)
	assert.Len(t, stored.Errors, 6, "both findings re-detected in each of the three rounds")

	// Every pass retries each still-uncorrected error, so attempts grow
	// round over round: 2, then 4 more, then the third round stops mid-pass
	// when the session cap is hit. The two findings from round three never
	// get an attempt.
	assert.Len(t, stored.Attempts, stored.Config.MaxAttempts)
	for _, a := range stored.Attempts {
		assert.Equal(t, types.AttemptFailed, a.Status)
		assert.LessOrEqual(t, a.AttemptNumber, stored.Config.MaxAttemptsPerError)
	}
	assert.True(t, stored.Status.IsTerminal())
}

func TestIterativeCorrectionRejectsBadBudget(t *testing.T) {
	eng := newTestEngine(t, Options{})
	_, err := eng.IterativeCorrection(context.Background(), "task-1", cleanContent, 0)
	require.Error(t, err)
}

func TestStatsAggregatesAcrossSessions(t *testing.T) {
	eng := newTestEngine(t, Options{})

	_, err := eng.IterativeCorrection(context.Background(), "task-1", "func broken() { return 1;", 3)
	require.NoError(t, err)
	_, err = eng.CreateSession("task-2")
	require.NoError(t, err)

	stats := eng.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, stats.SucceededAttempts+stats.FailedAttempts, stats.TotalAttempts)
	if stats.TotalAttempts > 0 {
		assert.InDelta(t, float64(stats.SucceededAttempts)/float64(stats.TotalAttempts), stats.SuccessRate, 1e-9)
	}
}

func TestValidationFailureMarksAttemptFailed(t *testing.T) {
	eng := newTestEngine(t, Options{
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "func stillBroken() {", nil // unbalanced output
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", "")
	require.NotNil(t, attempt)

	assert.Equal(t, types.AttemptFailed, attempt.Status)
	require.NotNil(t, attempt.ValidationResult)
	assert.False(t, attempt.ValidationResult.Passed)
	assert.Empty(t, attempt.CorrectedContent, "rollback discards failed output by default")
}

func TestValidationFailureKeepsContentWithoutRollback(t *testing.T) {
	cfg := types.DefaultCorrectionConfig()
	cfg.RollbackOnFailure = false
	eng := newTestEngine(t, Options{
		Correction: cfg,
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "func stillBroken() {", nil
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", "")
	require.NotNil(t, attempt)

	assert.Equal(t, types.AttemptFailed, attempt.Status)
	assert.Equal(t, "func stillBroken() {", attempt.CorrectedContent)
}

func TestRollbackAttemptReturnsErrorToUncorrectedSet(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", "")
	require.NotNil(t, attempt)
	require.Equal(t, types.AttemptSucceeded, attempt.Status)

	stored, _ := eng.Session(sess.ID)
	assert.True(t, stored.AllCorrected())

	require.NoError(t, eng.RollbackAttempt(sess.ID, attempt.ID))

	stored, _ = eng.Session(sess.ID)
	assert.False(t, stored.AllCorrected())
	assert.Equal(t, types.AttemptRolledBack, stored.Attempts[0].Status)

	// Rolled back is terminal.
	require.Error(t, eng.RollbackAttempt(sess.ID, attempt.ID))
}

func TestSkipAttemptOnlyFromPending(t *testing.T) {
	eng := newTestEngine(t, Options{})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeSyntax, types.SeverityHigh, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "func broken() {", "")
	require.NotNil(t, attempt)

	// The automatic loop already drove the attempt to a terminal state.
	require.Error(t, eng.SkipAttempt(sess.ID, attempt.ID))
	require.Error(t, eng.SkipAttempt(sess.ID, "missing"))
}

func TestExternalValidatorDrivesAttemptOutcome(t *testing.T) {
	eng := newTestEngine(t, Options{
		Validator: func(ctx context.Context, content string, category types.ValidationCategory) (types.ValidationCheck, error) {
			return types.ValidationCheck{
				Name:     "external",
				Category: category,
				Passed:   strings.Contains(content, "approved"),
				Message:  "needs the approved marker",
			}, nil
		},
		Corrector: func(ctx context.Context, detected types.DetectedError, content string, strat types.Strategy) (string, error) {
			return "not quite", nil
		},
	})
	sess, err := eng.CreateSession("task-1")
	require.NoError(t, err)
	seedErrors(t, eng, sess.ID, seededError("e1", types.ErrorTypeLogic, types.SeverityMedium, 0.9))

	attempt := eng.CorrectError(context.Background(), sess.ID, "e1", "content", "")
	require.NotNil(t, attempt)
	assert.Equal(t, types.AttemptFailed, attempt.Status)
	require.NotNil(t, attempt.ValidationResult)
	assert.Equal(t, "needs the approved marker", attempt.ValidationResult.Message)
}
