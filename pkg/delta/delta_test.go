package delta

import (
	"errors"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appointmentDefinition() *models.WorkDefinition {
	return &models.WorkDefinition{
		TypeID:  "appointment_scheduler",
		Version: "1.0.0",
		Slots: []models.SlotSpec{
			{Path: "date", Type: models.SlotTypeString, Required: true},
			{Path: "patient_id", Type: models.SlotTypeString, Immutable: true},
			{Path: "attendees", Type: models.SlotTypeInteger, Schema: map[string]any{"minimum": 1}},
			{Path: "notes"},
		},
		FSM: models.FSM{
			States:  []string{"SCORING", "SCHEDULED", "CANCELLED"},
			Initial: "SCORING",
			Transitions: []models.Transition{
				{From: "SCORING", To: "SCHEDULED"},
				{From: "SCHEDULED", To: models.StateCompleted},
				{From: models.WildcardState, To: "CANCELLED"},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	def := appointmentDefinition()
	base := models.Snapshot{
		State: "SCORING",
		Slots: map[string]any{"date": "tomorrow", "patient_id": "p-1"},
	}

	tests := []struct {
		name    string
		snap    models.Snapshot
		delta   models.Delta
		wantErr error
		index   int
	}{
		{
			name:  "set known slot",
			snap:  base,
			delta: models.Delta{models.SetOp{Path: "date", Value: "friday"}},
		},
		{
			name:    "set unknown slot",
			snap:    base,
			delta:   models.Delta{models.SetOp{Path: "nonexistent", Value: 1}},
			wantErr: ErrUnknownSlot,
		},
		{
			name:    "unset unknown slot",
			snap:    base,
			delta:   models.Delta{models.UnsetOp{Path: "nonexistent"}},
			wantErr: ErrUnknownSlot,
		},
		{
			name:  "re-set immutable slot to same value",
			snap:  base,
			delta: models.Delta{models.SetOp{Path: "patient_id", Value: "p-1"}},
		},
		{
			name:    "change immutable slot",
			snap:    base,
			delta:   models.Delta{models.SetOp{Path: "patient_id", Value: "p-2"}},
			wantErr: ErrImmutableSlotViolation,
		},
		{
			name:    "unset immutable slot",
			snap:    base,
			delta:   models.Delta{models.UnsetOp{Path: "patient_id"}},
			wantErr: ErrImmutableSlotViolation,
		},
		{
			name:  "first set of immutable slot",
			snap:  models.Snapshot{State: "SCORING", Slots: map[string]any{}},
			delta: models.Delta{models.SetOp{Path: "patient_id", Value: "p-9"}},
		},
		{
			name:    "immutable slot set twice in one delta",
			snap:    models.Snapshot{State: "SCORING", Slots: map[string]any{}},
			delta:   models.Delta{models.SetOp{Path: "patient_id", Value: "p-9"}, models.SetOp{Path: "patient_id", Value: "p-8"}},
			wantErr: ErrImmutableSlotViolation,
			index:   1,
		},
		{
			name:  "allowed transition",
			snap:  base,
			delta: models.Delta{models.TransitionOp{To: "SCHEDULED"}},
		},
		{
			name:  "wildcard transition",
			snap:  models.Snapshot{State: "SCHEDULED", Slots: map[string]any{}},
			delta: models.Delta{models.TransitionOp{To: "CANCELLED"}},
		},
		{
			name:    "unreachable transition",
			snap:    base,
			delta:   models.Delta{models.TransitionOp{To: "Z"}},
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "transition validated against evolving state",
			snap:    models.Snapshot{State: "SCORING", Slots: map[string]any{}},
			delta:   models.Delta{models.TransitionOp{To: "CANCELLED"}, models.TransitionOp{To: "SCHEDULED"}},
			wantErr: ErrInvalidTransition,
			index:   1,
		},
		{
			name:  "complete with required slots set",
			snap:  models.Snapshot{State: "SCHEDULED", Slots: map[string]any{"date": "friday"}},
			delta: models.Delta{models.TransitionOp{To: models.StateCompleted}},
		},
		{
			name:    "complete with required slot unset",
			snap:    models.Snapshot{State: "SCHEDULED", Slots: map[string]any{"patient_id": "p-1"}},
			delta:   models.Delta{models.AppendEventRefOp{Ref: "msg-1"}, models.TransitionOp{To: models.StateCompleted}},
			wantErr: ErrRequiredSlotMissing,
			index:   1,
		},
		{
			name:  "required slot set later in the completing delta",
			snap:  models.Snapshot{State: "SCHEDULED", Slots: map[string]any{}},
			delta: models.Delta{models.TransitionOp{To: models.StateCompleted}, models.SetOp{Path: "date", Value: "friday"}},
		},
		{
			name:    "required slot unset by the completing delta",
			snap:    models.Snapshot{State: "SCHEDULED", Slots: map[string]any{"date": "friday"}},
			delta:   models.Delta{models.UnsetOp{Path: "date"}, models.TransitionOp{To: models.StateCompleted}},
			wantErr: ErrRequiredSlotMissing,
			index:   1,
		},
		{
			name:  "cancel ignores required slots",
			snap:  models.Snapshot{State: "SCHEDULED", Slots: map[string]any{}},
			delta: models.Delta{models.TransitionOp{To: "CANCELLED"}},
		},
		{
			name:    "type mismatch",
			snap:    base,
			delta:   models.Delta{models.SetOp{Path: "date", Value: 42}},
			wantErr: ErrSlotTypeMismatch,
		},
		{
			name:    "schema violation",
			snap:    base,
			delta:   models.Delta{models.SetOp{Path: "attendees", Value: 0}},
			wantErr: ErrSlotTypeMismatch,
		},
		{
			name:  "untyped slot accepts anything",
			snap:  base,
			delta: models.Delta{models.SetOp{Path: "notes", Value: map[string]any{"a": []any{1, "b"}}}},
		},
		{
			name:  "event ref has no requirements",
			snap:  base,
			delta: models.Delta{models.AppendEventRefOp{Ref: "msg-1"}},
		},
		{
			name:    "frozen work",
			snap:    models.Snapshot{State: models.StateCancelled, Slots: map[string]any{}},
			delta:   models.Delta{models.AppendEventRefOp{Ref: "msg-1"}},
			wantErr: ErrWorkFrozen,
			index:   -1,
		},
		{
			name: "one bad operation rejects the whole delta",
			snap: base,
			delta: models.Delta{
				models.SetOp{Path: "date", Value: "friday"},
				models.TransitionOp{To: "SCHEDULED"},
				models.SetOp{Path: "nonexistent", Value: true},
			},
			wantErr: ErrUnknownSlot,
			index:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.snap, tt.delta, def)
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.index, ve.Index)
		})
	}
}

func TestValidate_DoesNotMutateSnapshot(t *testing.T) {
	def := appointmentDefinition()
	snap := models.Snapshot{State: "SCORING", Slots: map[string]any{"date": "tomorrow"}}

	err := Validate(snap, models.Delta{
		models.SetOp{Path: "date", Value: "friday"},
		models.TransitionOp{To: "SCHEDULED"},
	}, def)
	require.NoError(t, err)

	assert.Equal(t, "SCORING", snap.State)
	assert.Equal(t, "tomorrow", snap.Slots["date"])
}

func TestApply(t *testing.T) {
	snap := models.Snapshot{State: "SCORING", Slots: map[string]any{"date": "tomorrow", "notes": "x"}}

	out, err := Apply(snap, models.Delta{
		models.SetOp{Path: "date", Value: "friday"},
		models.UnsetOp{Path: "notes"},
		models.TransitionOp{To: "SCHEDULED"},
		models.AppendEventRefOp{Ref: "msg-7"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.Snapshot{State: "SCHEDULED", Slots: map[string]any{"date": "friday"}}, out)
	assert.Equal(t, "tomorrow", snap.Slots["date"], "input snapshot must be left untouched")
	assert.Equal(t, "SCORING", snap.State)
}

func TestApply_UnknownOperation(t *testing.T) {
	_, err := Apply(models.Snapshot{Slots: map[string]any{}}, models.Delta{nil})
	require.ErrorIs(t, err, models.ErrUnknownOperation)
}

func TestSameValue(t *testing.T) {
	assert.True(t, SameValue(5, 5.0))
	assert.True(t, SameValue(map[string]any{"a": 1}, map[string]any{"a": float64(1)}))
	assert.False(t, SameValue("5", 5))
	assert.False(t, SameValue(nil, ""))
}
