// Package events defines the messages published on the event bus after work mutations commit.
package events

import (
	"time"

	"github.com/dukex/parley/pkg/models"
)

type EventType string

// Topics.
const (
	WorkEventsTopic    = "parley.work.events"
	NotificationsTopic = "parley.notifications"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkEventCommittedType       EventType = "work.event.committed"
	AcknowledgementRequestedType EventType = "conversation.acknowledgement.requested"
)

// TopicFor routes an event type to its topic.
func TopicFor(t EventType) string {
	if t == AcknowledgementRequestedType {
		return NotificationsTopic
	}

	return WorkEventsTopic
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AccountID string    `json:"account_id"`
}

// WorkEventCommitted mirrors one audit row after its transaction committed.
type WorkEventCommitted struct {
	BaseEvent

	Event models.WorkEvent `json:"event"`
}

func (WorkEventCommitted) GetType() EventType {
	return WorkEventCommittedType
}

// AcknowledgementRequested asks the messaging layer to post a system message into a conversation.
type AcknowledgementRequested struct {
	BaseEvent

	ConversationID  string `json:"conversation_id"`
	TargetAccountID string `json:"target_account_id"`
	Text            string `json:"text"`
}

func (AcknowledgementRequested) GetType() EventType {
	return AcknowledgementRequestedType
}
