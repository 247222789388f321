package models

import "time"

// SemanticContextStatus is the lifecycle of a pending confirmation.
type SemanticContextStatus string

const (
	SemanticContextPending  SemanticContextStatus = "pending"
	SemanticContextConsumed SemanticContextStatus = "consumed"
	SemanticContextExpired  SemanticContextStatus = "expired"
)

// SemanticContext is a pending yes/no confirmation of one slot's proposed value.
type SemanticContext struct {
	ID             string                `json:"id"`
	AccountID      string                `json:"account_id"`
	ConversationID string                `json:"conversation_id"`
	WorkID         string                `json:"work_id,omitempty"`
	SlotPath       string                `json:"slot_path"`
	ProposedValue  any                   `json:"proposed_value"`
	Status         SemanticContextStatus `json:"status"`
	TraceID        string                `json:"trace_id,omitempty"`
	MessageID      string                `json:"message_id,omitempty"`
	ExpiresAt      time.Time             `json:"expires_at"`
	CreatedAt      time.Time             `json:"created_at"`
	ConsumedAt     *time.Time            `json:"consumed_at,omitempty"`
}
