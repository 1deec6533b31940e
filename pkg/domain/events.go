package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabanok/progression-engine/pkg/errors"
)

// EventType identifies a domain event emitted by the award coordinator.
type EventType string

const (
	EventPointsAwarded        EventType = "progression.points_awarded"
	EventPointsAdjusted       EventType = "progression.points_adjusted"
	EventLevelUp              EventType = "progression.level_up"
	EventStreakExtended       EventType = "progression.streak_extended"
	EventStreakBroken         EventType = "progression.streak_broken"
	EventAchievementCompleted EventType = "progression.achievement_completed"
	EventMissionCompleted     EventType = "progression.mission_completed"
	EventBadgeGranted         EventType = "progression.badge_granted"
	EventEventJoined          EventType = "progression.event_joined"
	EventEventCompleted       EventType = "progression.event_completed"
	EventSeasonRewardGranted  EventType = "progression.season_reward_granted"
)

// Event is an immutable fact about a profile change. Data carries everything a
// notification or leaderboard consumer needs without re-querying the profile.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(eventType EventType, userID string, at time.Time, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

// ActivityEvent is a trackable learner action reported by the content subsystem.
// ID is the idempotence key: replaying an ID never grants rewards twice.
type ActivityEvent struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Category   string            `json:"category"` // e.g. lesson_completed, exercise_completed, cultural_contribution
	Value      int64             `json:"value"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the event before any state is touched.
func (e ActivityEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.ErrValidationFailed("id", "cannot be empty")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return errors.ErrValidationFailed("user_id", "cannot be empty")
	}
	if strings.TrimSpace(e.Category) == "" {
		return errors.ErrValidationFailed("category", "cannot be empty")
	}
	if e.Value < 0 {
		return errors.ErrValidationFailed("value", "must be non-negative")
	}
	if e.Value > MaxActivityValue {
		return errors.ErrValidationFailed("value", fmt.Sprintf("must not exceed %d", MaxActivityValue))
	}
	if e.OccurredAt.IsZero() {
		return errors.ErrValidationFailed("occurred_at", "cannot be zero")
	}
	return nil
}

// Signal converts the activity into a criteria signal for the given streak.
func (e ActivityEvent) Signal(streak int) Signal {
	return Signal{
		Category: e.Category,
		Value:    e.Value,
		Metadata: e.Metadata,
		Streak:   streak,
	}
}
