package publisher

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// MockEventPublisher is a mock implementation of EventPublisher for testing.
// It uses testify/mock to allow test assertions on method calls.
type MockEventPublisher struct {
	mock.Mock
}

// Publish mocks publishing events. Events are passed to Called as one slice.
func (m *MockEventPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// NewMockEventPublisher creates a new mock publisher.
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}
