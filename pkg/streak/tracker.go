// Package streak maintains daily activity streaks on UTC calendar days.
package streak

import (
	"time"

	"github.com/tabanok/progression-engine/pkg/common"
	"github.com/tabanok/progression-engine/pkg/domain"
)

// State describes a profile's streak relative to a point in time.
type State string

const (
	// StateNoStreak means there is no streak that can still be continued.
	StateNoStreak State = "no_streak"

	// StateActive means the user was active today or yesterday.
	StateActive State = "active"

	// StateGracePending means exactly one day was missed and the grace day is still available.
	StateGracePending State = "grace_pending"
)

// Tracker applies the daily streak rules.
//
// Rules, with gap = UTC days between the last activity date and the new activity:
//   - gap <= 0: same day (or out-of-order), no change
//   - gap == 1: streak extended
//   - gap == 2 and grace unused: streak extended, grace consumed
//   - otherwise: streak broken, restarts at 1 and grace resets
type Tracker struct{}

// NewTracker creates a streak tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordActivity applies an activity at activityAt and returns the updated
// profile copy plus any StreakExtended / StreakBroken events.
// Timestamps after now are treated as now so clock skew cannot open future days.
func (t *Tracker) RecordActivity(p *domain.Profile, activityAt, now time.Time) (*domain.Profile, []domain.Event) {
	if !now.IsZero() && activityAt.After(now) {
		activityAt = now
	}
	day := common.TruncateToDateUTC(activityAt)

	if p.LastActivityDate == nil {
		updated := p.Clone()
		updated.CurrentStreak = 1
		updated.LongestStreak = max(updated.LongestStreak, 1)
		updated.GracePeriodUsed = false
		updated.LastActivityDate = &day
		return updated, []domain.Event{extended(updated, activityAt, false)}
	}

	gap := common.DaysBetween(*p.LastActivityDate, day)
	if gap <= 0 {
		return p, nil
	}

	updated := p.Clone()
	updated.LastActivityDate = &day

	switch {
	case gap == 1:
		updated.CurrentStreak++
		updated.LongestStreak = max(updated.LongestStreak, updated.CurrentStreak)
		return updated, []domain.Event{extended(updated, activityAt, false)}

	case gap == 2 && !p.GracePeriodUsed:
		updated.CurrentStreak++
		updated.GracePeriodUsed = true
		updated.LongestStreak = max(updated.LongestStreak, updated.CurrentStreak)
		return updated, []domain.Event{extended(updated, activityAt, true)}

	default:
		previous := p.CurrentStreak
		updated.CurrentStreak = 1
		updated.GracePeriodUsed = false
		updated.LongestStreak = max(updated.LongestStreak, 1)

		broken := domain.NewEvent(domain.EventStreakBroken, updated.UserID, activityAt, map[string]any{
			"previous_streak": previous,
			"missed_days":     gap - 1,
			"current_streak":  updated.CurrentStreak,
		})
		return updated, []domain.Event{broken}
	}
}

// State reports the streak state at now without modifying the profile.
func (t *Tracker) State(p *domain.Profile, now time.Time) State {
	if p.LastActivityDate == nil {
		return StateNoStreak
	}

	gap := common.DaysBetween(*p.LastActivityDate, now)
	switch {
	case gap <= 1:
		return StateActive
	case gap == 2 && !p.GracePeriodUsed:
		return StateGracePending
	default:
		return StateNoStreak
	}
}

// EffectiveStreak returns the streak that would still count at now:
// CurrentStreak while active or grace pending, otherwise 0.
func (t *Tracker) EffectiveStreak(p *domain.Profile, now time.Time) int {
	if t.State(p, now) == StateNoStreak {
		return 0
	}
	return p.CurrentStreak
}

func extended(p *domain.Profile, at time.Time, graceUsed bool) domain.Event {
	return domain.NewEvent(domain.EventStreakExtended, p.UserID, at, map[string]any{
		"current_streak": p.CurrentStreak,
		"longest_streak": p.LongestStreak,
		"grace_used":     graceUsed,
	})
}
