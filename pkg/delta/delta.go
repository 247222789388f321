// Package delta validates and applies ordered mutation operations against a
// work snapshot. It performs no I/O.
package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/dukex/parley/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Apply returns the snapshot produced by applying d to snap. The input is left untouched,
// so applying the same delta to the same snapshot always yields the same result.
func Apply(snap models.Snapshot, d models.Delta) (models.Snapshot, error) {
	out := snap.Clone()

	for i, op := range d {
		if err := applyOp(&out, op); err != nil {
			return snap, fmt.Errorf("operation %d: %w", i, err)
		}
	}

	return out, nil
}

func applyOp(s *models.Snapshot, op models.Operation) error {
	switch o := op.(type) {
	case models.SetOp:
		s.Slots[o.Path] = o.Value
	case models.UnsetOp:
		delete(s.Slots, o.Path)
	case models.TransitionOp:
		s.State = o.To
	case models.AppendEventRefOp:
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownOperation, op)
	}

	return nil
}

// Validate checks every operation of d against def, in order, against the snapshot as
// it evolves through the delta. The first failing operation rejects the whole delta.
// A delta that ends in COMPLETED must leave every required slot set.
func Validate(snap models.Snapshot, d models.Delta, def *models.WorkDefinition) error {
	if models.IsTerminal(snap.State) {
		return &ValidationError{Index: -1, Target: snap.State, Err: ErrWorkFrozen}
	}

	cur := snap.Clone()
	completedAt := -1

	for i, op := range d {
		if err := validateOp(cur, op, def); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.Index = i

				return ve
			}

			return err
		}

		if err := applyOp(&cur, op); err != nil {
			return err
		}

		if t, ok := op.(models.TransitionOp); ok && t.To == models.StateCompleted {
			completedAt = i
		}
	}

	if cur.State == models.StateCompleted {
		if missing := missingRequired(cur, def); len(missing) > 0 {
			return &ValidationError{
				Index:  completedAt,
				Kind:   models.OpTransition,
				Target: models.StateCompleted,
				Detail: strings.Join(missing, ", "),
				Err:    ErrRequiredSlotMissing,
			}
		}
	}

	return nil
}

func missingRequired(s models.Snapshot, def *models.WorkDefinition) []string {
	var missing []string

	for _, spec := range def.Slots {
		if _, set := s.Slots[spec.Path]; spec.Required && !set {
			missing = append(missing, spec.Path)
		}
	}

	return missing
}

func validateOp(cur models.Snapshot, op models.Operation, def *models.WorkDefinition) error {
	switch o := op.(type) {
	case models.SetOp:
		spec, ok := def.Slot(o.Path)
		if !ok {
			return &ValidationError{Kind: models.OpSet, Target: o.Path, Err: ErrUnknownSlot}
		}

		if existing, set := cur.Slots[o.Path]; set && spec.Immutable && !SameValue(existing, o.Value) {
			return &ValidationError{Kind: models.OpSet, Target: o.Path, Err: ErrImmutableSlotViolation}
		}

		if detail := checkType(spec, o.Value); detail != "" {
			return &ValidationError{Kind: models.OpSet, Target: o.Path, Detail: detail, Err: ErrSlotTypeMismatch}
		}
	case models.UnsetOp:
		spec, ok := def.Slot(o.Path)
		if !ok {
			return &ValidationError{Kind: models.OpUnset, Target: o.Path, Err: ErrUnknownSlot}
		}

		if _, set := cur.Slots[o.Path]; set && spec.Immutable {
			return &ValidationError{Kind: models.OpUnset, Target: o.Path, Err: ErrImmutableSlotViolation}
		}
	case models.TransitionOp:
		if models.IsTerminal(cur.State) || !def.CanTransition(cur.State, o.To) {
			return &ValidationError{
				Kind:   models.OpTransition,
				Target: o.To,
				Detail: "from " + cur.State,
				Err:    ErrInvalidTransition,
			}
		}
	case models.AppendEventRefOp:
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownOperation, op)
	}

	return nil
}

// SameValue compares two slot values by their JSON encoding, so 5 and 5.0 are equal.
func SameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)

	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// checkType returns a description of the mismatch, or "" when value satisfies spec.
func checkType(spec models.SlotSpec, value any) string {
	schema := make(map[string]any, len(spec.Schema)+1)
	for k, v := range spec.Schema {
		schema[k] = v
	}

	if _, declared := schema["type"]; !declared && spec.Type != "" && spec.Type != models.SlotTypeAny {
		schema["type"] = string(spec.Type)
	}

	if len(schema) == 0 {
		return ""
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(value))
	if err != nil {
		return err.Error()
	}

	if result.Valid() {
		return ""
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}

	return strings.Join(problems, "; ")
}
