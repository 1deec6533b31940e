package repository

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// MockProfileStore is a mock implementation of ProfileStore for testing.
// It uses testify/mock to allow test assertions on method calls.
type MockProfileStore struct {
	mock.Mock
}

// GetProfile mocks reading a profile.
func (m *MockProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*domain.Profile)
	return p, args.Error(1)
}

// CreateProfile mocks inserting a profile.
func (m *MockProfileStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// ListProfiles mocks paging through profiles.
func (m *MockProfileStore) ListProfiles(ctx context.Context, afterUserID string, limit int) ([]*domain.Profile, error) {
	args := m.Called(ctx, afterUserID, limit)
	profiles, _ := args.Get(0).([]*domain.Profile)
	return profiles, args.Error(1)
}

// BeginTx mocks starting a transaction.
func (m *MockProfileStore) BeginTx(ctx context.Context) (TxProfileStore, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(TxProfileStore)
	return tx, args.Error(1)
}

// NewMockProfileStore creates a new mock store.
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{}
}
