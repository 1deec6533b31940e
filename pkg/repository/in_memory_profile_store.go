package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
)

// InMemoryProfileStore implements ProfileStore in process memory.
// Used by tests and local development. Transactions hold a per-user lock from
// the first read or write of a profile until Commit or Rollback, so writers for
// the same user serialize while different users proceed in parallel.
type InMemoryProfileStore struct {
	mu        sync.Mutex
	profiles  map[string]*domain.Profile
	processed map[string]map[string]time.Time // userID -> eventID -> processed at
	locks     map[string]chan struct{}        // userID -> 1-slot lock
}

// NewInMemoryProfileStore creates an empty in-memory store.
func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{
		profiles:  make(map[string]*domain.Profile),
		processed: make(map[string]map[string]time.Time),
		locks:     make(map[string]chan struct{}),
	}
}

// GetProfile returns a copy of the committed profile, or nil.
func (s *InMemoryProfileStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.profiles[userID].Clone(), nil
}

// CreateProfile inserts a profile if none exists for the user.
func (s *InMemoryProfileStore) CreateProfile(_ context.Context, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(profile)
	return nil
}

// ListProfiles pages through committed profiles ordered by user_id.
func (s *InMemoryProfileStore) ListProfiles(_ context.Context, afterUserID string, limit int) ([]*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		if id > afterUserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	profiles := make([]*domain.Profile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, s.profiles[id].Clone())
	}

	return profiles, nil
}

// BeginTx starts a transaction.
func (s *InMemoryProfileStore) BeginTx(_ context.Context) (TxProfileStore, error) {
	return &InMemoryTxProfileStore{
		store:     s,
		held:      make(map[string]bool),
		staged:    make(map[string]*domain.Profile),
		processed: make(map[string]map[string]bool),
	}, nil
}

func (s *InMemoryProfileStore) insertLocked(profile *domain.Profile) {
	if _, exists := s.profiles[profile.UserID]; exists {
		return
	}
	s.profiles[profile.UserID] = newStoredProfile(profile)
}

// newStoredProfile returns the copy persisted for a newly created profile.
func newStoredProfile(profile *domain.Profile) *domain.Profile {
	p := profile.Clone()
	p.EnsureMaps()
	p.Version = 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	return p
}

func (s *InMemoryProfileStore) lockChan(userID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[userID] = ch
	}
	return ch
}

// InMemoryTxProfileStore stages writes until Commit.
type InMemoryTxProfileStore struct {
	store     *InMemoryProfileStore
	held      map[string]bool
	staged    map[string]*domain.Profile
	processed map[string]map[string]bool
	done      bool
}

// acquire takes the user's lock for the rest of the transaction.
func (t *InMemoryTxProfileStore) acquire(ctx context.Context, userID string) error {
	if t.done {
		return errors.ErrPersistenceFailure("use transaction", fmt.Errorf("transaction already finished"))
	}
	if t.held[userID] {
		return nil
	}

	select {
	case t.store.lockChan(userID) <- struct{}{}:
		t.held[userID] = true
		return nil
	case <-ctx.Done():
		return errors.ErrConcurrencyConflict(userID, ctx.Err())
	}
}

// GetProfileForUpdate locks the user and returns the (possibly staged) profile.
func (t *InMemoryTxProfileStore) GetProfileForUpdate(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := t.acquire(ctx, userID); err != nil {
		return nil, err
	}

	if p, ok := t.staged[userID]; ok {
		return p.Clone(), nil
	}

	return t.store.GetProfile(ctx, userID)
}

// CreateProfile stages a new profile if none exists; an existing profile is left untouched.
func (t *InMemoryTxProfileStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	if err := t.acquire(ctx, profile.UserID); err != nil {
		return err
	}

	if _, ok := t.staged[profile.UserID]; ok {
		return nil
	}

	t.store.mu.Lock()
	_, exists := t.store.profiles[profile.UserID]
	t.store.mu.Unlock()
	if exists {
		return nil
	}

	t.staged[profile.UserID] = newStoredProfile(profile)

	return nil
}

// IsEventProcessed checks staged and committed idempotence keys.
func (t *InMemoryTxProfileStore) IsEventProcessed(ctx context.Context, userID, eventID string) (bool, error) {
	if err := t.acquire(ctx, userID); err != nil {
		return false, err
	}

	if t.processed[userID][eventID] {
		return true, nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	_, ok := t.store.processed[userID][eventID]
	return ok, nil
}

// SaveProfile stages the profile if its version matches the current one.
func (t *InMemoryTxProfileStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	if err := t.acquire(ctx, profile.UserID); err != nil {
		return err
	}

	current, ok := t.staged[profile.UserID]
	if !ok {
		t.store.mu.Lock()
		current = t.store.profiles[profile.UserID]
		t.store.mu.Unlock()
	}

	if current == nil {
		return errors.ErrProfileNotFound(profile.UserID)
	}
	if current.Version != profile.Version {
		return errors.ErrConcurrencyConflict(profile.UserID,
			fmt.Errorf("profile version %d is stale (current %d)", profile.Version, current.Version))
	}

	profile.Version++
	profile.UpdatedAt = time.Now().UTC()
	t.staged[profile.UserID] = profile.Clone()

	return nil
}

// MarkEventProcessed stages the idempotence key.
func (t *InMemoryTxProfileStore) MarkEventProcessed(ctx context.Context, userID, eventID string) error {
	if err := t.acquire(ctx, userID); err != nil {
		return err
	}

	if t.processed[userID] == nil {
		t.processed[userID] = make(map[string]bool)
	}
	t.processed[userID][eventID] = true

	return nil
}

// Commit applies staged writes and releases all held locks.
func (t *InMemoryTxProfileStore) Commit() error {
	if t.done {
		return errors.ErrPersistenceFailure("commit transaction", fmt.Errorf("transaction already finished"))
	}

	s := t.store
	s.mu.Lock()
	now := time.Now().UTC()
	for id, p := range t.staged {
		s.profiles[id] = p
	}
	for userID, events := range t.processed {
		if s.processed[userID] == nil {
			s.processed[userID] = make(map[string]time.Time)
		}
		for eventID := range events {
			s.processed[userID][eventID] = now
		}
	}
	s.mu.Unlock()

	t.release()
	return nil
}

// Rollback discards staged writes and releases all held locks.
// Rolling back a finished transaction is a no-op.
func (t *InMemoryTxProfileStore) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *InMemoryTxProfileStore) release() {
	t.done = true
	for userID := range t.held {
		<-t.store.lockChan(userID)
	}
	t.held = nil
	t.staged = nil
	t.processed = nil
}
