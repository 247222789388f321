package notifier_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/parley/pkg/channels/gochannel"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestDeliverer_PostsAcknowledgements(t *testing.T) {
	received := make(chan events.AcknowledgementRequested, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ack events.AcknowledgementRequested
		if err := json.NewDecoder(r.Body).Decode(&ack); err == nil {
			received <- ack
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := newBus(t)

	require.NoError(t, notifier.NewDeliverer(server.URL, time.Second, logger).Register(bus))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, notifier.New(bus, logger).Send(t.Context(), "conv-1", "acc-1", "Cita agendada"))

	select {
	case ack := <-received:
		assert.Equal(t, "conv-1", ack.ConversationID)
		assert.Equal(t, "acc-1", ack.TargetAccountID)
		assert.Equal(t, "Cita agendada", ack.Text)
		assert.Equal(t, events.AcknowledgementRequestedType, ack.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("acknowledgement was not delivered")
	}
}

func TestDeliverer_FailedPostIsDropped(t *testing.T) {
	calls := make(chan struct{}, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls <- struct{}{}

		http.Error(w, "conversation closed", http.StatusGone)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
	bus := newBus(t)

	require.NoError(t, notifier.NewDeliverer(server.URL, time.Second, logger).Register(bus))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, notifier.New(bus, logger).Send(t.Context(), "conv-1", "acc-1", "hola"))

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}

	// acked, not redelivered
	select {
	case <-calls:
		t.Fatal("acknowledgement was redelivered")
	case <-time.After(200 * time.Millisecond):
	}
}
