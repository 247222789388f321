package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkError(t *testing.T) {
	err := NewWorkError("AdvanceRevision", "w-1", ErrConcurrencyConflict)

	assert.Equal(t, "AdvanceRevision operation failed for work w-1: concurrency conflict", err.Error())
	assert.True(t, IsConcurrencyConflict(err))
	assert.True(t, IsConcurrencyConflict(fmt.Errorf("commit: %w", err)))
	assert.False(t, IsNotFound(err))
}

func TestNotFoundFamily(t *testing.T) {
	for _, err := range []error{
		ErrWorkNotFound,
		ErrProposedWorkNotFound,
		ErrDefinitionNotFound,
		ErrSemanticContextNotFound,
		ErrClaimNotFound,
		NewWorkError("GetWork", "w-1", ErrWorkNotFound),
	} {
		assert.True(t, IsNotFound(err), err.Error())
	}

	assert.False(t, errors.Is(ErrWorkNotFound, ErrProposedWorkNotFound))
}

func TestDefinitionError(t *testing.T) {
	err := &DefinitionError{Op: "Insert", AccountID: "acc", TypeID: "appointment_scheduler", Version: "1.0.0", Err: ErrDuplicateVersion}

	assert.True(t, IsDuplicateVersion(err))
	assert.Contains(t, err.Error(), "appointment_scheduler@1.0.0")
}
