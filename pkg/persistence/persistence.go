// Package persistence provides the durable store abstraction for work execution.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/parley/pkg/models"
)

// Persistence is the durable store. Every multi-step mutation runs inside WithTx.
type Persistence interface {
	// WithTx runs fn inside one transaction. The transaction commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Definitions() DefinitionRepository

	// FindActiveWork returns the most recently updated non-terminal work for the
	// conversation, or nil when none exists.
	FindActiveWork(ctx context.Context, accountID, relationshipID, conversationID string) (*models.Work, error)
	ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores immutable, versioned work definitions.
type DefinitionRepository interface {
	// Insert fails with ErrDuplicateVersion when (account, type, version) exists.
	Insert(ctx context.Context, def *models.WorkDefinition) error
	// Get returns nil, nil when the version is absent.
	Get(ctx context.Context, accountID, typeID, version string) (*models.WorkDefinition, error)
	GetByID(ctx context.Context, id string) (*models.WorkDefinition, error)
	ListVersions(ctx context.Context, accountID, typeID string) ([]*models.WorkDefinition, error)
	ListAll(ctx context.Context, accountID string) ([]*models.WorkDefinition, error)
}

// Tx exposes the row-level operations available inside a transaction.
type Tx interface {
	InsertDecisionEvent(ctx context.Context, event *models.DecisionEvent) error
	InsertProposedWork(ctx context.Context, proposal *models.ProposedWork) error
	GetProposedWork(ctx context.Context, accountID, id string) (*models.ProposedWork, error)
	// ResolveProposedWork moves a pending proposal to opened or discarded. The update is
	// conditional on the pending resolution and fails with ErrAlreadyResolved otherwise.
	ResolveProposedWork(ctx context.Context, accountID, id string, resolution models.Resolution, workID string, at time.Time) (*models.ProposedWork, error)

	GetDefinitionByID(ctx context.Context, id string) (*models.WorkDefinition, error)

	InsertWork(ctx context.Context, work *models.Work) error
	GetWork(ctx context.Context, id string) (*models.Work, error)
	// LockConversationType serializes transactions that open works of one type in one
	// conversation. The lock is held until the transaction ends.
	LockConversationType(ctx context.Context, accountID, relationshipID, conversationID, typeID string) error
	CountActiveWorks(ctx context.Context, accountID, relationshipID, conversationID, typeID string) (int, error)
	ListSlots(ctx context.Context, workID string) ([]*models.WorkSlot, error)
	UpsertSlot(ctx context.Context, slot *models.WorkSlot) error
	DeleteSlot(ctx context.Context, workID, path string) error
	// AdvanceRevision is the compare-and-swap: it bumps the revision and writes state only
	// when the stored revision still equals expected, else ErrConcurrencyConflict.
	AdvanceRevision(ctx context.Context, workID string, expected int64, state string, at time.Time) (int64, error)

	AppendWorkEvent(ctx context.Context, event *models.WorkEvent) error
	ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error)

	InsertSemanticContext(ctx context.Context, sc *models.SemanticContext) error
	GetSemanticContext(ctx context.Context, id string) (*models.SemanticContext, error)
	// ConsumeSemanticContext fails with ErrInvalidOrExpired unless the context is pending and unexpired.
	ConsumeSemanticContext(ctx context.Context, id, messageID string, at time.Time) (*models.SemanticContext, error)
	FindPendingSemanticContext(ctx context.Context, accountID, conversationID string, at time.Time) (*models.SemanticContext, error)
	// ExpireSemanticContext withdraws one pending context ahead of its deadline, failing
	// with ErrInvalidOrExpired when it already left pending.
	ExpireSemanticContext(ctx context.Context, id string) (*models.SemanticContext, error)

	// InsertClaim returns the existing claim instead when the tool call was already claimed.
	InsertClaim(ctx context.Context, claim *models.ExternalEffectClaim) (*models.ExternalEffectClaim, error)
	GetClaim(ctx context.Context, id string) (*models.ExternalEffectClaim, error)
	// ReleaseClaim fails with ErrClaimNotActive unless the claim is currently claimed.
	ReleaseClaim(ctx context.Context, id string, at time.Time) error
	InsertEffect(ctx context.Context, effect *models.ExternalEffect) error

	ExpireWorks(ctx context.Context, at time.Time) ([]models.ExpiredWork, error)
	ExpireSemanticContexts(ctx context.Context, at time.Time) (int, error)
}
