package models

import "time"

// WorkEventType classifies an audit trail entry.
type WorkEventType string

const (
	WorkEventOpened                WorkEventType = "work_opened"
	WorkEventDeltaCommitted        WorkEventType = "delta_committed"
	WorkEventExpired               WorkEventType = "work_expired"
	WorkEventConfirmationRequested WorkEventType = "semantic_confirmation_requested"
	WorkEventConfirmationConsumed  WorkEventType = "semantic_confirmation_consumed"
)

// WorkEvent is an append-only audit row tagged with the work revision it corresponds to.
type WorkEvent struct {
	ID           int64          `json:"id"`
	WorkID       string         `json:"work_id"`
	AccountID    string         `json:"account_id"`
	Type         WorkEventType  `json:"type"`
	WorkRevision int64          `json:"work_revision"`
	Actor        Actor          `json:"actor"`
	TraceID      string         `json:"trace_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ExpiredWork is one row transitioned by the expiration sweep.
type ExpiredWork struct {
	WorkID    string
	AccountID string
	FromState string
	Revision  int64
}

// ExpirationResult summarizes one maintenance sweep.
type ExpirationResult struct {
	ExpiredWorks    int `json:"expired_works"`
	ExpiredContexts int `json:"expired_contexts"`
}
