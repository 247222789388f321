package mocks

import (
	"context"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/resolver"
	"github.com/stretchr/testify/mock"
)

// MockRegistry is a mock implementation of the definition registry operations.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(ctx context.Context, accountID string, def *models.WorkDefinition) (*models.WorkDefinition, error) {
	args := m.Called(ctx, accountID, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkDefinition), args.Error(1)
}

func (m *MockRegistry) Get(ctx context.Context, accountID, typeID, version string) (*models.WorkDefinition, error) {
	args := m.Called(ctx, accountID, typeID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkDefinition), args.Error(1)
}

func (m *MockRegistry) GetByID(ctx context.Context, id string) (*models.WorkDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkDefinition), args.Error(1)
}

func (m *MockRegistry) GetLatest(ctx context.Context, accountID, typeID string) (*models.WorkDefinition, error) {
	args := m.Called(ctx, accountID, typeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkDefinition), args.Error(1)
}

func (m *MockRegistry) ListLatest(ctx context.Context, accountID string) ([]*models.WorkDefinition, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkDefinition), args.Error(1)
}

// MockResolver is a mock implementation of the work resolver.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, c resolver.Context) (resolver.Resolution, error) {
	args := m.Called(ctx, c)

	return args.Get(0).(resolver.Resolution), args.Error(1)
}

// MockNotifier is a mock implementation of the acknowledgement notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, conversationID, targetAccountID, text string) error {
	args := m.Called(ctx, conversationID, targetAccountID, text)

	return args.Error(0)
}
