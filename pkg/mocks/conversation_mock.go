package mocks

import (
	"context"

	"github.com/dukex/parley/pkg/conversation"
	"github.com/stretchr/testify/mock"
)

// MockConversation is a mock implementation of the message pipeline.
type MockConversation struct {
	mock.Mock
}

func (m *MockConversation) HandleMessage(ctx context.Context, msg conversation.Message) (conversation.Outcome, error) {
	args := m.Called(ctx, msg)

	return args.Get(0).(conversation.Outcome), args.Error(1)
}
