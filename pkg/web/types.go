package web

import "github.com/dukex/parley/pkg/models"

// ProposalActionRequest scopes open and discard calls to the owning account.
type ProposalActionRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

// CommitDeltaRequest is the body of POST /works/:id/deltas. The expected revision, when
// any, travels in the If-Match header.
type CommitDeltaRequest struct {
	Operations models.Delta `json:"operations" validate:"required,min=1"`
	Actor      models.Actor `json:"actor"      validate:"required,oneof=user ai system"`
	TraceID    string       `json:"trace_id,omitempty"`
}

// ConfirmationRequestBody asks the user to confirm one slot value.
type ConfirmationRequestBody struct {
	SlotPath      string `json:"slot_path"             validate:"required"`
	ProposedValue any    `json:"proposed_value"`
	TraceID       string `json:"trace_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	TTLSeconds    int    `json:"ttl_seconds,omitempty" validate:"min=0"`
}

// MatchRequest looks for a pending confirmation answered by text.
type MatchRequest struct {
	AccountID      string `json:"account_id"      validate:"required"`
	ConversationID string `json:"conversation_id" validate:"required"`
	Text           string `json:"text"            validate:"required"`
}

// CommitConfirmationRequest consumes a semantic context.
type CommitConfirmationRequest struct {
	MessageID string `json:"message_id,omitempty"`
}

// ClaimRequestBody reserves an idempotency key on a work.
type ClaimRequestBody struct {
	EffectType string `json:"effect_type"            validate:"required"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// RecordEffectBody stores the outcome of a claimed call.
type RecordEffectBody struct {
	ClaimID  string              `json:"claim_id"  validate:"required"`
	ToolName string              `json:"tool_name" validate:"required"`
	Request  map[string]any      `json:"request,omitempty"`
	Response map[string]any      `json:"response,omitempty"`
	Status   models.EffectStatus `json:"status"    validate:"required,oneof=succeeded failed"`
}
