// Package events defines the correction lifecycle event types and the
// synchronous bus that delivers them to subscribers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/mend/internal/types"
)

// EventType identifies the kind of a lifecycle event.
type EventType string

const (
	EventErrorDetected       EventType = "error_detected"
	EventCorrectionStarted   EventType = "correction_started"
	EventCorrectionSucceeded EventType = "correction_succeeded"
	EventCorrectionFailed    EventType = "correction_failed"
	EventValidationCompleted EventType = "validation_completed"
	EventSessionCompleted    EventType = "session_completed"
)

// Event is a correction lifecycle event. The set of implementations is
// closed: every event carries an id, the session it belongs to, and the
// time it occurred.
type Event interface {
	// EventID returns the unique id of this event instance.
	EventID() string
	// Type returns which kind of event this is.
	Type() EventType
	// Session returns the id of the correction session this event belongs to.
	Session() string
	// OccurredAt returns when the event was created.
	OccurredAt() time.Time

	isEvent()
}

// Meta carries the fields common to every event.
type Meta struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func newMeta(sessionID string) Meta {
	return Meta{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) Session() string       { return m.SessionID }
func (m Meta) OccurredAt() time.Time { return m.Timestamp }
func (Meta) isEvent()                {}

// ErrorDetected is emitted once per finding during detection.
type ErrorDetected struct {
	Meta
	Error types.DetectedError `json:"error"`
}

func (ErrorDetected) Type() EventType { return EventErrorDetected }

// NewErrorDetected creates an ErrorDetected event for a finding.
func NewErrorDetected(sessionID string, detected types.DetectedError) ErrorDetected {
	return ErrorDetected{Meta: newMeta(sessionID), Error: detected}
}

// CorrectionStarted is emitted when an attempt moves to in_progress.
type CorrectionStarted struct {
	Meta
	ErrorID       string         `json:"error_id"`
	Strategy      types.Strategy `json:"strategy"`
	AttemptNumber int            `json:"attempt_number"`
}

func (CorrectionStarted) Type() EventType { return EventCorrectionStarted }

// NewCorrectionStarted creates a CorrectionStarted event.
func NewCorrectionStarted(sessionID, errorID string, strategy types.Strategy, attemptNumber int) CorrectionStarted {
	return CorrectionStarted{
		Meta:          newMeta(sessionID),
		ErrorID:       errorID,
		Strategy:      strategy,
		AttemptNumber: attemptNumber,
	}
}

// CorrectionSucceeded is emitted when an attempt succeeds.
type CorrectionSucceeded struct {
	Meta
	ErrorID   string         `json:"error_id"`
	AttemptID string         `json:"attempt_id"`
	Strategy  types.Strategy `json:"strategy"`
}

func (CorrectionSucceeded) Type() EventType { return EventCorrectionSucceeded }

// NewCorrectionSucceeded creates a CorrectionSucceeded event.
func NewCorrectionSucceeded(sessionID, errorID, attemptID string, strategy types.Strategy) CorrectionSucceeded {
	return CorrectionSucceeded{
		Meta:      newMeta(sessionID),
		ErrorID:   errorID,
		AttemptID: attemptID,
		Strategy:  strategy,
	}
}

// CorrectionFailed is emitted when an attempt fails, including failures
// caused by a corrector error or a failed post-correction validation.
type CorrectionFailed struct {
	Meta
	ErrorID   string         `json:"error_id"`
	AttemptID string         `json:"attempt_id"`
	Strategy  types.Strategy `json:"strategy"`
	Reason    string         `json:"reason"`
}

func (CorrectionFailed) Type() EventType { return EventCorrectionFailed }

// NewCorrectionFailed creates a CorrectionFailed event.
func NewCorrectionFailed(sessionID, errorID, attemptID string, strategy types.Strategy, reason string) CorrectionFailed {
	return CorrectionFailed{
		Meta:      newMeta(sessionID),
		ErrorID:   errorID,
		AttemptID: attemptID,
		Strategy:  strategy,
		Reason:    reason,
	}
}

// ValidationCompleted is emitted after a final validation pass.
type ValidationCompleted struct {
	Meta
	Passed   bool    `json:"passed"`
	PassRate float64 `json:"pass_rate"`
}

func (ValidationCompleted) Type() EventType { return EventValidationCompleted }

// NewValidationCompleted creates a ValidationCompleted event.
func NewValidationCompleted(sessionID string, result types.ValidationResult) ValidationCompleted {
	return ValidationCompleted{
		Meta:     newMeta(sessionID),
		Passed:   result.Passed,
		PassRate: result.PassRate(),
	}
}

// SessionCompleted is emitted when a session reaches a terminal status.
type SessionCompleted struct {
	Meta
	Success         bool `json:"success"`
	ErrorsDetected  int  `json:"errors_detected"`
	ErrorsCorrected int  `json:"errors_corrected"`
}

func (SessionCompleted) Type() EventType { return EventSessionCompleted }

// NewSessionCompleted creates a SessionCompleted event.
func NewSessionCompleted(sessionID string, success bool, detected, corrected int) SessionCompleted {
	return SessionCompleted{
		Meta:            newMeta(sessionID),
		Success:         success,
		ErrorsDetected:  detected,
		ErrorsCorrected: corrected,
	}
}
