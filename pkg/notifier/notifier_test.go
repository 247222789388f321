package notifier_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/mocks"
	"github.com/dukex/parley/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestNotifier_Send(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "conv-1", mock.MatchedBy(func(e events.AcknowledgementRequested) bool {
		return e.ConversationID == "conv-1" &&
			e.TargetAccountID == "acc-1" &&
			e.Text == "Cita agendada" &&
			e.Type == events.AcknowledgementRequestedType &&
			e.ID != ""
	})).Return(nil)

	n := notifier.New(bus, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	err := n.Send(t.Context(), "conv-1", "acc-1", "Cita agendada")
	assert.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestNotifier_SendError(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	n := notifier.New(bus, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	assert.Error(t, n.Send(t.Context(), "conv-1", "acc-1", "hola"))
}
