package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mend/internal/types"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(Event) { order = append(order, "first") })
	bus.Subscribe(func(Event) { order = append(order, "second") })
	bus.Subscribe(func(Event) { order = append(order, "third") })

	bus.Publish(NewSessionCompleted("s1", true, 2, 2))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublishIsSynchronous(t *testing.T) {
	bus := NewBus()
	delivered := false
	bus.Subscribe(func(Event) { delivered = true })

	bus.Publish(NewSessionCompleted("s1", false, 1, 0))

	assert.True(t, delivered, "Publish should return only after listeners ran")
}

func TestPanickingListenerDoesNotAffectSiblings(t *testing.T) {
	bus := NewBus()
	var before, after bool
	bus.Subscribe(func(Event) { before = true })
	bus.Subscribe(func(Event) { panic("listener exploded") })
	bus.Subscribe(func(Event) { after = true })

	require.NotPanics(t, func() {
		bus.Publish(NewSessionCompleted("s1", true, 0, 0))
	})

	assert.True(t, before)
	assert.True(t, after, "listener after the panicking one should still run")
	assert.Equal(t, int64(1), bus.PanicCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	count := 0
	sub := bus.Subscribe(func(Event) { count++ })

	bus.Publish(NewSessionCompleted("s1", true, 0, 0))
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	bus.Publish(NewSessionCompleted("s1", true, 0, 0))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.ListenerCount())
}

func TestEventCarriesSessionAndTimestamp(t *testing.T) {
	detected := types.DetectedError{
		ID:          "e1",
		Type:        types.ErrorTypeSyntax,
		Severity:    types.SeverityHigh,
		Description: "unbalanced braces",
		Confidence:  0.9,
	}
	ev := NewErrorDetected("s42", detected)

	assert.Equal(t, EventErrorDetected, ev.Type())
	assert.Equal(t, "s42", ev.Session())
	assert.NotEmpty(t, ev.EventID())
	assert.False(t, ev.OccurredAt().IsZero())
	assert.Equal(t, "e1", ev.Error.ID)
}

func TestValidationCompletedCarriesPassRate(t *testing.T) {
	result := types.ValidationResult{
		Passed: false,
		Checks: []types.ValidationCheck{
			{Name: "syntax", Category: types.CategorySyntax, Passed: true},
			{Name: "security", Category: types.CategorySecurity, Passed: false},
		},
	}
	ev := NewValidationCompleted("s1", result)

	assert.False(t, ev.Passed)
	assert.InDelta(t, 0.5, ev.PassRate, 1e-9)
}
