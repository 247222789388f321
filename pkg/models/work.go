package models

import (
	"slices"
	"time"
)

// Terminal work states. A work in one of these is frozen.
const (
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
	StateExpired   = "EXPIRED"
)

// TerminalStates lists every terminal work state.
var TerminalStates = []string{StateCompleted, StateFailed, StateCancelled, StateExpired}

// IsTerminal reports whether state is terminal.
func IsTerminal(state string) bool {
	return slices.Contains(TerminalStates, state)
}

// Actor identifies who set a slot or committed a delta.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAI     Actor = "ai"
	ActorSystem Actor = "system"
)

// SlotStatus is the commitment level of a slot value.
type SlotStatus string

const (
	SlotStatusProposed  SlotStatus = "proposed"
	SlotStatusCommitted SlotStatus = "committed"
)

// Work is a live work instance, pinned to the definition version it was opened against.
type Work struct {
	ID                string     `json:"id"`
	AccountID         string     `json:"account_id"`
	RelationshipID    string     `json:"relationship_id"`
	ConversationID    string     `json:"conversation_id"`
	WorkDefinitionID  string     `json:"work_definition_id"`
	DefinitionVersion string     `json:"definition_version"`
	ProposedWorkID    string     `json:"proposed_work_id,omitempty"`
	State             string     `json:"state"`
	Revision          int64      `json:"revision"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the work is frozen.
func (w *Work) IsTerminal() bool {
	return IsTerminal(w.State)
}

// WorkSlot is one (work, path) value row.
type WorkSlot struct {
	WorkID    string     `json:"work_id"`
	Path      string     `json:"path"`
	Value     any        `json:"value"`
	Status    SlotStatus `json:"status"`
	Immutable bool       `json:"immutable"`
	SetBy     Actor      `json:"set_by"`
	Evidence  string     `json:"evidence,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Snapshot is the in-memory projection of a work: its slot values plus its state.
type Snapshot struct {
	Slots map[string]any `json:"slots"`
	State string         `json:"state"`
}

// NewSnapshot projects slot rows and a state into a Snapshot.
func NewSnapshot(state string, slots []*WorkSlot) Snapshot {
	s := Snapshot{State: state, Slots: make(map[string]any, len(slots))}
	for _, slot := range slots {
		s.Slots[slot.Path] = slot.Value
	}

	return s
}

// Clone returns a copy whose slot map can be mutated independently.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{State: s.State, Slots: make(map[string]any, len(s.Slots))}
	for k, v := range s.Slots {
		out.Slots[k] = v
	}

	return out
}

// WorkProjection is the read model returned by GetWorkState.
type WorkProjection struct {
	Work     *Work       `json:"work"`
	Slots    []*WorkSlot `json:"slots"`
	Snapshot Snapshot    `json:"state"`
}
