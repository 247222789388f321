package mocks

import (
	"context"

	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock implementation of the work engine operations.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ProposeWork(ctx context.Context, req engine.ProposeRequest) (*models.ProposedWork, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ProposedWork), args.Error(1)
}

func (m *MockEngine) OpenWork(ctx context.Context, accountID, proposedWorkID string) (*models.Work, error) {
	args := m.Called(ctx, accountID, proposedWorkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Work), args.Error(1)
}

func (m *MockEngine) DiscardWork(ctx context.Context, accountID, proposedWorkID string) (*models.ProposedWork, error) {
	args := m.Called(ctx, accountID, proposedWorkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ProposedWork), args.Error(1)
}

func (m *MockEngine) GetWorkState(ctx context.Context, workID string) (*models.WorkProjection, error) {
	args := m.Called(ctx, workID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkProjection), args.Error(1)
}

func (m *MockEngine) ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error) {
	args := m.Called(ctx, workID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkEvent), args.Error(1)
}

// CommitDelta records the number of options rather than the option funcs themselves.
func (m *MockEngine) CommitDelta(ctx context.Context, workID string, d models.Delta, actor models.Actor, traceID string, opts ...engine.CommitOption) (*models.Work, error) {
	args := m.Called(ctx, workID, d, actor, traceID, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Work), args.Error(1)
}

func (m *MockEngine) RequestSemanticConfirmation(ctx context.Context, req engine.ConfirmationRequest) (*models.SemanticContext, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SemanticContext), args.Error(1)
}

func (m *MockEngine) ResolveSemanticMatch(ctx context.Context, accountID, conversationID, text string) (*models.SemanticContext, error) {
	args := m.Called(ctx, accountID, conversationID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SemanticContext), args.Error(1)
}

func (m *MockEngine) CommitSemanticConfirmation(ctx context.Context, contextID, messageID string) (*models.SemanticContext, error) {
	args := m.Called(ctx, contextID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SemanticContext), args.Error(1)
}

func (m *MockEngine) ExpireSemanticContext(ctx context.Context, contextID string) (*models.SemanticContext, error) {
	args := m.Called(ctx, contextID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SemanticContext), args.Error(1)
}

func (m *MockEngine) ClaimExternalEffect(ctx context.Context, req engine.ClaimRequest) (*models.ExternalEffectClaim, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExternalEffectClaim), args.Error(1)
}

func (m *MockEngine) RecordExternalEffect(ctx context.Context, req engine.RecordRequest) (*models.ExternalEffect, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExternalEffect), args.Error(1)
}

func (m *MockEngine) ExpireMaintenance(ctx context.Context) (models.ExpirationResult, error) {
	args := m.Called(ctx)

	return args.Get(0).(models.ExpirationResult), args.Error(1)
}

func (m *MockEngine) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
