package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OpKind tags a delta operation.
type OpKind string

const (
	OpSet            OpKind = "set"
	OpUnset          OpKind = "unset"
	OpTransition     OpKind = "transition"
	OpAppendEventRef OpKind = "append_event_ref"
)

// ErrUnknownOperation is returned for an operation kind outside the closed set.
var ErrUnknownOperation = errors.New("unknown delta operation")

// Operation is one step of a Delta. The set of implementations is closed:
// SetOp, UnsetOp, TransitionOp and AppendEventRefOp.
type Operation interface {
	Kind() OpKind
	isOperation()
}

// SetOp overwrites a slot value.
type SetOp struct {
	Path     string
	Value    any
	Evidence string
}

// UnsetOp removes a slot.
type UnsetOp struct {
	Path string
}

// TransitionOp moves the work to another FSM state.
type TransitionOp struct {
	To string
}

// AppendEventRefOp records an external reference in the audit trail only.
type AppendEventRefOp struct {
	Ref string
}

func (SetOp) Kind() OpKind            { return OpSet }
func (UnsetOp) Kind() OpKind          { return OpUnset }
func (TransitionOp) Kind() OpKind     { return OpTransition }
func (AppendEventRefOp) Kind() OpKind { return OpAppendEventRef }

func (SetOp) isOperation()            {}
func (UnsetOp) isOperation()          {}
func (TransitionOp) isOperation()     {}
func (AppendEventRefOp) isOperation() {}

// Delta is an ordered list of operations, validated as a whole before any is applied.
type Delta []Operation

type wireOp struct {
	Op       OpKind `json:"op"`
	Path     string `json:"path,omitempty"`
	Value    any    `json:"value,omitempty"`
	Evidence string `json:"evidence,omitempty"`
	To       string `json:"to,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// MarshalJSON encodes the delta as a list of {"op": ...} objects.
func (d Delta) MarshalJSON() ([]byte, error) {
	out := make([]wireOp, 0, len(d))

	for _, op := range d {
		switch o := op.(type) {
		case SetOp:
			out = append(out, wireOp{Op: OpSet, Path: o.Path, Value: o.Value, Evidence: o.Evidence})
		case UnsetOp:
			out = append(out, wireOp{Op: OpUnset, Path: o.Path})
		case TransitionOp:
			out = append(out, wireOp{Op: OpTransition, To: o.To})
		case AppendEventRefOp:
			out = append(out, wireOp{Op: OpAppendEventRef, Ref: o.Ref})
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var in []wireOp
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	ops := make(Delta, 0, len(in))

	for i, w := range in {
		switch w.Op {
		case OpSet:
			ops = append(ops, SetOp{Path: w.Path, Value: w.Value, Evidence: w.Evidence})
		case OpUnset:
			ops = append(ops, UnsetOp{Path: w.Path})
		case OpTransition:
			ops = append(ops, TransitionOp{To: w.To})
		case OpAppendEventRef:
			ops = append(ops, AppendEventRefOp{Ref: w.Ref})
		default:
			return fmt.Errorf("%w %q at index %d", ErrUnknownOperation, w.Op, i)
		}
	}

	*d = ops

	return nil
}
