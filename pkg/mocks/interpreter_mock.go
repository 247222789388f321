package mocks

import (
	"context"

	"github.com/dukex/parley/pkg/interpreter"
	"github.com/dukex/parley/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockInterpreter is a mock implementation of interpreter.Interpreter interface.
type MockInterpreter struct {
	mock.Mock
}

func (m *MockInterpreter) Interpret(ctx context.Context, definitions []*models.WorkDefinition, text string) (*interpreter.Analysis, error) {
	args := m.Called(ctx, definitions, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*interpreter.Analysis), args.Error(1)
}

func (m *MockInterpreter) SolveActiveWork(ctx context.Context, definition *models.WorkDefinition, state models.Snapshot, text string) ([]models.CandidateSlot, error) {
	args := m.Called(ctx, definition, state, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.CandidateSlot), args.Error(1)
}
