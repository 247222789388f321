package models

import "time"

// ClaimStatus is the state of an idempotency reservation.
type ClaimStatus string

const (
	ClaimStatusClaimed  ClaimStatus = "claimed"
	ClaimStatusReleased ClaimStatus = "released"
)

// EffectStatus is the recorded outcome of an external call.
type EffectStatus string

const (
	EffectStatusSucceeded EffectStatus = "succeeded"
	EffectStatusFailed    EffectStatus = "failed"
)

// ExternalEffectClaim reserves an idempotency key before a side effect is attempted.
type ExternalEffectClaim struct {
	ID             string      `json:"id"`
	AccountID      string      `json:"account_id"`
	WorkID         string      `json:"work_id"`
	EffectType     string      `json:"effect_type"`
	ToolCallID     string      `json:"tool_call_id,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
	Status         ClaimStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ReleasedAt     *time.Time  `json:"released_at,omitempty"`
}

// ExternalEffect stores the outcome of a claimed external call.
type ExternalEffect struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"account_id"`
	WorkID         string         `json:"work_id"`
	ClaimID        string         `json:"claim_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	ToolName       string         `json:"tool_name"`
	Request        map[string]any `json:"request,omitempty"`
	Response       map[string]any `json:"response,omitempty"`
	Status         EffectStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}
