package delta

import (
	"errors"
	"fmt"

	"github.com/dukex/parley/pkg/models"
)

// Validation failure kinds. Every failure is wrapped in a *ValidationError.
var (
	ErrUnknownSlot            = errors.New("unknown slot")
	ErrImmutableSlotViolation = errors.New("immutable slot violation")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrSlotTypeMismatch       = errors.New("slot type mismatch")
	ErrWorkFrozen             = errors.New("work is in a terminal state")
	ErrRequiredSlotMissing    = errors.New("required slot missing")
)

// ValidationError locates the operation that made a delta invalid.
type ValidationError struct {
	Index  int           // position of the offending operation, -1 for whole-delta failures
	Kind   models.OpKind // kind of the offending operation
	Target string        // slot path or destination state
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("delta operation %d (%s %q): %v", e.Index, e.Kind, e.Target, e.Err)
	if e.Index < 0 {
		msg = fmt.Sprintf("delta rejected: %v", e.Err)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether err is a delta validation failure of any kind.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve) || errors.Is(err, models.ErrUnknownOperation)
}

// IsUnknownSlot checks if an error is an unknown slot failure.
func IsUnknownSlot(err error) bool {
	return errors.Is(err, ErrUnknownSlot)
}

// IsImmutableSlotViolation checks if an error is an immutable slot failure.
func IsImmutableSlotViolation(err error) bool {
	return errors.Is(err, ErrImmutableSlotViolation)
}

// IsRequiredSlotMissing checks if an error is a completion attempted with required slots unset.
func IsRequiredSlotMissing(err error) bool {
	return errors.Is(err, ErrRequiredSlotMissing)
}

// IsInvalidTransition checks if an error is an FSM failure.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
