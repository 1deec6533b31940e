package repository

import (
	"context"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// ProfileStore defines the interface for managing progression profiles.
// This interface abstracts database operations to allow for testing and different implementations.
type ProfileStore interface {
	// GetProfile retrieves a user's profile.
	// Returns nil if no profile exists (lazy initialization).
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// CreateProfile inserts a zeroed profile.
	// Idempotent: an existing profile is left untouched (INSERT ... ON CONFLICT DO NOTHING).
	CreateProfile(ctx context.Context, profile *domain.Profile) error

	// ListProfiles returns up to limit profiles with user_id > afterUserID, ordered by user_id.
	// Used by the leaderboard aggregator and season settlement to page through all profiles.
	ListProfiles(ctx context.Context, afterUserID string, limit int) ([]*domain.Profile, error)

	// BeginTx starts a transaction and returns a transactional store.
	// Used by the award coordinator so one activity is applied all-or-nothing.
	BeginTx(ctx context.Context) (TxProfileStore, error)
}

// TxProfileStore is a transactional profile store that supports commit/rollback.
// Profiles read with GetProfileForUpdate stay locked until Commit or Rollback,
// which serializes concurrent writers for the same user.
type TxProfileStore interface {
	// GetProfileForUpdate retrieves the profile with SELECT ... FOR UPDATE (row-level lock).
	// Returns nil if no profile exists.
	GetProfileForUpdate(ctx context.Context, userID string) (*domain.Profile, error)

	// CreateProfile inserts a zeroed profile inside the transaction (idempotent).
	CreateProfile(ctx context.Context, profile *domain.Profile) error

	// IsEventProcessed reports whether the activity event was already applied for the user.
	IsEventProcessed(ctx context.Context, userID, eventID string) (bool, error)

	// SaveProfile writes the profile if its Version still matches the stored row,
	// then increments Version. A mismatch returns a CONCURRENCY_CONFLICT error.
	SaveProfile(ctx context.Context, profile *domain.Profile) error

	// MarkEventProcessed records the (userID, eventID) idempotence key.
	MarkEventProcessed(ctx context.Context, userID, eventID string) error

	// Commit commits the transaction.
	Commit() error

	// Rollback rolls back the transaction.
	Rollback() error
}
