package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/parley/pkg/channels/gochannel"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.WorkEventCommitted, 1)
	acks := make(chan *events.AcknowledgementRequested, 1)

	require.NoError(t, bus.Handle(events.WorkEventCommittedType, func(_ context.Context, e any) error {
		received <- e.(*events.WorkEventCommitted)

		return nil
	}))
	require.NoError(t, bus.Handle(events.AcknowledgementRequestedType, func(_ context.Context, e any) error {
		acks <- e.(*events.AcknowledgementRequested)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	err = bus.Publish(t.Context(), "w-1", events.WorkEventCommitted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.WorkEventCommittedType, AccountID: "acc"},
		Event:     models.WorkEvent{ID: 7, WorkID: "w-1", Type: models.WorkEventDeltaCommitted, WorkRevision: 2},
	})
	require.NoError(t, err)

	err = bus.Publish(t.Context(), "conv-1", events.AcknowledgementRequested{
		BaseEvent:      events.BaseEvent{ID: bus.GenerateID(), Type: events.AcknowledgementRequestedType},
		ConversationID: "conv-1",
		Text:           "Listo",
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, int64(2), e.Event.WorkRevision)
		assert.Equal(t, "w-1", e.Event.WorkID)
	case <-time.After(5 * time.Second):
		t.Fatal("work event not delivered")
	}

	select {
	case a := <-acks:
		assert.Equal(t, "Listo", a.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("acknowledgement not delivered")
	}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, events.NotificationsTopic, events.TopicFor(events.AcknowledgementRequestedType))
	assert.Equal(t, events.WorkEventsTopic, events.TopicFor(events.WorkEventCommittedType))
}
