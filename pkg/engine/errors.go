package engine

import (
	"errors"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/persistence"
)

var (
	// ErrDefinitionMissing indicates the definition a proposal or work points at is gone.
	ErrDefinitionMissing = errors.New("work definition missing")

	// ErrActiveWorkExists indicates a single_active definition already has an open work
	// in the conversation.
	ErrActiveWorkExists = errors.New("an active work of this type already exists")

	// ErrInvalidRequest indicates malformed input to an engine operation.
	ErrInvalidRequest = errors.New("invalid request")
)

// IsInvalidRequest checks if an error is a malformed request.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsActiveWorkExists checks if an error is a concurrency policy rejection.
func IsActiveWorkExists(err error) bool {
	return errors.Is(err, ErrActiveWorkExists)
}

// IsDefinitionMissing checks if an error indicates a dangling definition reference.
func IsDefinitionMissing(err error) bool {
	return errors.Is(err, ErrDefinitionMissing)
}

// outcome classifies err for metric tags.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case persistence.IsConcurrencyConflict(err):
		return "conflict"
	case delta.IsValidationError(err):
		return "invalid"
	case persistence.IsNotFound(err):
		return "not_found"
	case persistence.IsAlreadyResolved(err):
		return "already_resolved"
	case persistence.IsInvalidOrExpired(err):
		return "invalid_or_expired"
	case IsInvalidRequest(err), IsActiveWorkExists(err), IsDefinitionMissing(err):
		return "rejected"
	default:
		return "error"
	}
}
