// Package models defines the core domain models for conversational work execution.
package models

import "time"

// WildcardState matches any current state as the source of a transition.
const WildcardState = "*"

// DefaultInitialState is used when a definition's FSM omits an initial state.
const DefaultInitialState = "OPEN"

// SlotType is the declared value type of a slot.
type SlotType string

const (
	SlotTypeAny     SlotType = "any"
	SlotTypeString  SlotType = "string"
	SlotTypeNumber  SlotType = "number"
	SlotTypeInteger SlotType = "integer"
	SlotTypeBoolean SlotType = "boolean"
	SlotTypeObject  SlotType = "object"
	SlotTypeArray   SlotType = "array"
)

// SlotSpec declares one slot a work of this definition may hold.
type SlotSpec struct {
	Path        string         `json:"path"                  yaml:"path"                  validate:"required"`
	Type        SlotType       `json:"type,omitempty"        yaml:"type,omitempty"        validate:"omitempty,oneof=any string number integer boolean object array"`
	Required    bool           `json:"required,omitempty"    yaml:"required,omitempty"`  // must be set to reach COMPLETED
	Immutable   bool           `json:"immutable,omitempty"   yaml:"immutable,omitempty"` // immutable once set
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"      yaml:"schema,omitempty"`
}

// Transition is one allowed edge of the FSM. From may be WildcardState.
type Transition struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to"   yaml:"to"   validate:"required"`
}

// FSM is the finite state machine a work's state moves through.
type FSM struct {
	States      []string     `json:"states"            yaml:"states"            validate:"required,min=1,dive,required"`
	Initial     string       `json:"initial,omitempty" yaml:"initial,omitempty"`
	Transitions []Transition `json:"transitions"       yaml:"transitions"       validate:"dive"`
}

// ConcurrencyPolicy controls how many active works of a type may coexist in a conversation.
type ConcurrencyPolicy string

const (
	ConcurrencyAllowMultiple ConcurrencyPolicy = "allow_multiple"
	ConcurrencySingleActive  ConcurrencyPolicy = "single_active"
)

// NegotiationPolicy holds the conversational flags of a definition.
type NegotiationPolicy struct {
	AutoOpen               bool `json:"auto_open,omitempty"                yaml:"auto_open,omitempty"`
	ConfirmImmutable       bool `json:"confirm_immutable,omitempty"        yaml:"confirm_immutable,omitempty"`
	ConfirmationTTLSeconds int  `json:"confirmation_ttl_seconds,omitempty" yaml:"confirmation_ttl_seconds,omitempty" validate:"min=0"`
}

// Policies are the lifecycle rules of a definition.
type Policies struct {
	ExpirationSeconds int64             `json:"expiration_seconds,omitempty" yaml:"expiration_seconds,omitempty" validate:"min=0"`
	Concurrency       ConcurrencyPolicy `json:"concurrency,omitempty"        yaml:"concurrency,omitempty"        validate:"omitempty,oneof=allow_multiple single_active"`
	Negotiation       NegotiationPolicy `json:"negotiation"                  yaml:"negotiation"`
}

// WorkDefinition is an immutable, versioned work schema. A change produces a new version.
type WorkDefinition struct {
	ID               string     `json:"id"                          yaml:"id,omitempty"`
	AccountID        string     `json:"account_id"                  yaml:"account_id,omitempty"`
	TypeID           string     `json:"type_id"                     yaml:"type_id"                     validate:"required"`
	Version          string     `json:"version"                     yaml:"version"                     validate:"required,semver"`
	Name             string     `json:"name,omitempty"              yaml:"name,omitempty"`
	Description      string     `json:"description,omitempty"       yaml:"description,omitempty"`
	Slots            []SlotSpec `json:"slots"                       yaml:"slots"                       validate:"dive"`
	FSM              FSM        `json:"fsm"                         yaml:"fsm"`
	Policies         Policies   `json:"policies"                    yaml:"policies"`
	BindingAttribute string     `json:"binding_attribute,omitempty" yaml:"binding_attribute,omitempty"`
	CreatedAt        time.Time  `json:"created_at"                  yaml:"created_at,omitempty"`
}

// Slot returns the spec for path.
func (d *WorkDefinition) Slot(path string) (SlotSpec, bool) {
	for _, s := range d.Slots {
		if s.Path == path {
			return s, true
		}
	}

	return SlotSpec{}, false
}

// InitialState returns the FSM initial state, or DefaultInitialState when none is declared.
func (d *WorkDefinition) InitialState() string {
	if d.FSM.Initial != "" {
		return d.FSM.Initial
	}

	return DefaultInitialState
}

// CanTransition reports whether the FSM allows moving from one state to another.
func (d *WorkDefinition) CanTransition(from, to string) bool {
	for _, t := range d.FSM.Transitions {
		if t.To != to {
			continue
		}

		if t.From == WildcardState || t.From == from {
			return true
		}
	}

	return false
}

// Concurrency returns the effective concurrency policy.
func (d *WorkDefinition) Concurrency() ConcurrencyPolicy {
	if d.Policies.Concurrency == "" {
		return ConcurrencyAllowMultiple
	}

	return d.Policies.Concurrency
}

// Expiration returns the work TTL, zero meaning works never expire.
func (d *WorkDefinition) Expiration() time.Duration {
	return time.Duration(d.Policies.ExpirationSeconds) * time.Second
}

// Key renders the logical identifier "typeId@version".
func (d *WorkDefinition) Key() string {
	return d.TypeID + "@" + d.Version
}
