// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound is the parent of every "row absent" error below.
	ErrNotFound = errors.New("not found")

	ErrWorkNotFound            = fmt.Errorf("work %w", ErrNotFound)
	ErrProposedWorkNotFound    = fmt.Errorf("proposed work %w", ErrNotFound)
	ErrDefinitionNotFound      = fmt.Errorf("work definition %w", ErrNotFound)
	ErrSemanticContextNotFound = fmt.Errorf("semantic context %w", ErrNotFound)
	ErrClaimNotFound           = fmt.Errorf("external effect claim %w", ErrNotFound)

	// ErrConcurrencyConflict indicates the revision compare-and-swap was lost.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrAlreadyResolved indicates a proposed work is no longer pending.
	ErrAlreadyResolved = errors.New("proposed work already resolved")

	// ErrDuplicateVersion indicates a definition version was already registered.
	ErrDuplicateVersion = errors.New("work definition version already exists")

	// ErrInvalidOrExpired indicates a semantic context is not pending or has expired.
	ErrInvalidOrExpired = errors.New("semantic context invalid or expired")

	// ErrClaimNotActive indicates an effect was recorded against a released claim.
	ErrClaimNotActive = errors.New("external effect claim is not active")
)

// WorkError wraps work-related errors with additional context.
type WorkError struct {
	Op     string // Operation being performed (e.g., "AdvanceRevision", "GetWork")
	WorkID string
	Err    error
}

func (e *WorkError) Error() string {
	return fmt.Sprintf("%s operation failed for work %s: %v", e.Op, e.WorkID, e.Err)
}

func (e *WorkError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for work errors.
func (e *WorkError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkError creates a new work error with context.
func NewWorkError(op, workID string, err error) *WorkError {
	return &WorkError{Op: op, WorkID: workID, Err: err}
}

// DefinitionError wraps definition-related errors with the logical key.
type DefinitionError struct {
	Op        string
	AccountID string
	TypeID    string
	Version   string
	Err       error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s operation failed for definition %s@%s (account %s): %v", e.Op, e.TypeID, e.Version, e.AccountID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConcurrencyConflict checks if an error indicates a lost revision compare-and-swap.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsAlreadyResolved checks if an error indicates a proposal is no longer pending.
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

// IsDuplicateVersion checks if an error indicates a definition version collision.
func IsDuplicateVersion(err error) bool {
	return errors.Is(err, ErrDuplicateVersion)
}

// IsInvalidOrExpired checks if an error indicates an unusable semantic context.
func IsInvalidOrExpired(err error) bool {
	return errors.Is(err, ErrInvalidOrExpired)
}
