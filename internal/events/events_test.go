package events

import (
	"errors"
	"testing"

	"klimatik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got OrderEventPayload
	calls := 0
	bus.Subscribe(EventOrderCreated, func(event *Event) error {
		calls++
		p, err := DecodeOrderPayload(event)
		require.NoError(t, err)
		got = p
		return nil
	})

	payload := OrderEventPayload{OrderID: 7, ItemName: "Gas refill", Status: models.StatusPending}
	require.NoError(t, bus.PublishJSON(EventOrderCreated, payload))

	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 7, got.OrderID)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewEventBus()

	created, changed := 0, 0
	bus.Subscribe(EventOrderCreated, func(*Event) error { created++; return nil })
	bus.Subscribe(EventOrderStatusChanged, func(*Event) error { changed++; return nil })

	require.NoError(t, bus.PublishJSON(EventOrderStatusChanged, OrderEventPayload{OrderID: 1}))

	assert.Equal(t, 0, created)
	assert.Equal(t, 1, changed)
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()

	second := 0
	bus.Subscribe(EventOrderCreated, func(*Event) error { return errors.New("boom") })
	bus.Subscribe(EventOrderCreated, func(*Event) error { second++; return nil })

	require.NoError(t, bus.PublishJSON(EventOrderCreated, OrderEventPayload{OrderID: 2}))
	assert.Equal(t, 1, second)
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventOrderCreated, OrderEventPayload{}))
}
