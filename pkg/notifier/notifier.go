// Package notifier asks the messaging layer to post acknowledgements into a conversation.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/google/uuid"
)

// Notifier publishes AcknowledgementRequested events. Delivery is the subscriber's job.
type Notifier struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(publisher eventbus.EventPublisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send requests delivery of text to conversationID on behalf of targetAccountID.
func (n *Notifier) Send(ctx context.Context, conversationID, targetAccountID, text string) error {
	event := events.AcknowledgementRequested{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.AcknowledgementRequestedType,
			Timestamp: n.now(),
			AccountID: targetAccountID,
		},
		ConversationID:  conversationID,
		TargetAccountID: targetAccountID,
		Text:            text,
	}

	if err := n.publisher.Publish(ctx, conversationID, event); err != nil {
		return err
	}

	n.logger.DebugContext(ctx, "acknowledgement requested", "conversation_id", conversationID)

	return nil
}
