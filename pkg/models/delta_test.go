package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta_UnmarshalJSON(t *testing.T) {
	var d Delta

	err := json.Unmarshal([]byte(`[
		{"op":"set","path":"date","value":"tomorrow","evidence":"mañana"},
		{"op":"unset","path":"notes"},
		{"op":"transition","to":"SCHEDULED"},
		{"op":"append_event_ref","ref":"msg-1"}
	]`), &d)
	require.NoError(t, err)

	assert.Equal(t, Delta{
		SetOp{Path: "date", Value: "tomorrow", Evidence: "mañana"},
		UnsetOp{Path: "notes"},
		TransitionOp{To: "SCHEDULED"},
		AppendEventRefOp{Ref: "msg-1"},
	}, d)
}

func TestDelta_UnmarshalJSON_UnknownOp(t *testing.T) {
	var d Delta

	err := json.Unmarshal([]byte(`[{"op":"merge","path":"date"}]`), &d)
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestDelta_MarshalJSON_KeepsFalsyValues(t *testing.T) {
	data, err := json.Marshal(Delta{SetOp{Path: "confirmed", Value: false}})
	require.NoError(t, err)

	assert.JSONEq(t, `[{"op":"set","path":"confirmed","value":false}]`, string(data))
}

func TestWorkDefinition_CanTransition(t *testing.T) {
	def := &WorkDefinition{FSM: FSM{
		States: []string{"A", "B", "C"},
		Transitions: []Transition{
			{From: "A", To: "B"},
			{From: WildcardState, To: "C"},
		},
	}}

	assert.True(t, def.CanTransition("A", "B"))
	assert.False(t, def.CanTransition("B", "A"))
	assert.True(t, def.CanTransition("B", "C"))
	assert.Equal(t, DefaultInitialState, def.InitialState())
	assert.Equal(t, ConcurrencyAllowMultiple, def.Concurrency())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range TerminalStates {
		assert.True(t, IsTerminal(s), s)
	}

	assert.False(t, IsTerminal("OPEN"))
}
