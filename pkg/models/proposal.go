package models

import "time"

// Resolution is the lifecycle state of a ProposedWork.
type Resolution string

const (
	ResolutionPending   Resolution = "pending"
	ResolutionOpened    Resolution = "opened"
	ResolutionDiscarded Resolution = "discarded"
)

// CandidateSlot is a slot value extracted from text together with its verbatim evidence.
type CandidateSlot struct {
	Path     string `json:"path"     validate:"required"`
	Value    any    `json:"value"`
	Evidence string `json:"evidence"`
}

// ModelInfo describes the model that produced a decision.
type ModelInfo struct {
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Version   string `json:"version,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// DecisionEvent is the append-only audit record of one AI decision.
type DecisionEvent struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"account_id"`
	ConversationID string         `json:"conversation_id"`
	TraceID        string         `json:"trace_id"`
	Kind           string         `json:"kind"`
	RawInput       string         `json:"raw_input,omitempty"`
	Model          ModelInfo      `json:"model"`
	Output         map[string]any `json:"output,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProposedWork is a candidate to open a Work. Immutable once it leaves pending.
type ProposedWork struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	RelationshipID   string          `json:"relationship_id"`
	ConversationID   string          `json:"conversation_id"`
	DecisionEventID  string          `json:"decision_event_id"`
	WorkDefinitionID string          `json:"work_definition_id"`
	Intent           string          `json:"intent"`
	CandidateSlots   []CandidateSlot `json:"candidate_slots"`
	Confidence       float64         `json:"confidence"`
	Resolution       Resolution      `json:"resolution"`
	WorkID           string          `json:"work_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	OpenedAt         *time.Time      `json:"opened_at,omitempty"`
	DiscardedAt      *time.Time      `json:"discarded_at,omitempty"`
}
