package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/tabanok/progression-engine/pkg/common"
)

// DefaultActivityLogLimit is the number of activity log entries kept per profile.
const DefaultActivityLogLimit = 100

// Profile is the per-user progression state.
// Level and Experience are derived from Points by the progression engine and are
// never set independently.
type Profile struct {
	UserID           string     `json:"user_id" db:"user_id"`
	Points           int64      `json:"points" db:"points"`
	Level            int        `json:"level" db:"level"`
	Experience       int64      `json:"experience" db:"experience"` // Points earned inside the current level
	CurrentStreak    int        `json:"current_streak" db:"current_streak"`
	LongestStreak    int        `json:"longest_streak" db:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty" db:"last_activity_date"` // UTC date (00:00:00)
	GracePeriodUsed  bool       `json:"grace_period_used" db:"grace_period_used"`
	PointsReachedAt  *time.Time `json:"points_reached_at,omitempty" db:"points_reached_at"` // When Points last changed

	ActivityLog         []ActivityLogEntry             `json:"activity_log" db:"activity_log"`
	BadgeIDs            []string                       `json:"badge_ids" db:"badge_ids"`
	AchievementProgress map[string]AchievementProgress `json:"achievement_progress" db:"achievement_progress"`
	MissionProgress     map[string]MissionProgress     `json:"mission_progress" db:"mission_progress"`
	EventParticipation  map[string]EventParticipation  `json:"event_participation" db:"event_participation"`
	SeasonRewards       map[string]SeasonRewardGrant   `json:"season_rewards" db:"season_rewards"`

	// Running totals that survive activity log truncation.
	SeasonTallies map[string]Tally `json:"season_tallies" db:"season_tallies"` // season ID -> activity credited during the season
	PeriodTallies map[string]Tally `json:"period_tallies" db:"period_tallies"` // PeriodKey -> activity credited all time and in the current day/week/month

	Version   int64     `json:"version" db:"version"` // Optimistic concurrency counter
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ActivityLogEntry records one processed activity.
type ActivityLogEntry struct {
	EventID       string    `json:"event_id"`
	Category      string    `json:"category"`
	Value         int64     `json:"value"`
	PointsAwarded int64     `json:"points_awarded"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AchievementProgress tracks a user's progress toward one achievement.
type AchievementProgress struct {
	CurrentValue int64      `json:"current_value"`
	TargetValue  int64      `json:"target_value"`
	Components   []int64    `json:"components,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// IsCompleted returns true once the achievement has been completed.
func (a AchievementProgress) IsCompleted() bool {
	return a.CompletedAt != nil
}

// MissionProgress tracks a mission within its current period [PeriodStart, PeriodEnd).
// Zero period bounds mean the mission never resets.
type MissionProgress struct {
	Progress    int64      `json:"progress"`
	Target      int64      `json:"target"`
	Components  []int64    `json:"components,omitempty"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EventParticipation tracks a user's participation in a special event.
type EventParticipation struct {
	JoinedAt    time.Time  `json:"joined_at"`
	Progress    int64      `json:"progress"`
	Target      int64      `json:"target"`
	Components  []int64    `json:"components,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SeasonRewardGrant records the season reward granted to a user.
type SeasonRewardGrant struct {
	Rank      int       `json:"rank"`
	Points    int64     `json:"points"`
	BadgeID   string    `json:"badge_id,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// Tally accumulates the activity credited to one season or calendar period.
type Tally struct {
	Points     int64     `json:"points"`
	Activities int64     `json:"activities"`
	PointsAt   time.Time `json:"points_at"`   // Latest activity that added points
	ActivityAt time.Time `json:"activity_at"` // Latest activity
}

func (t Tally) add(points int64, at time.Time) Tally {
	t.Activities = SaturatingAdd(t.Activities, 1)
	if at.After(t.ActivityAt) {
		t.ActivityAt = at
	}
	if points != 0 {
		t.Points = SaturatingAdd(t.Points, points)
		if at.After(t.PointsAt) {
			t.PointsAt = at
		}
	}
	return t
}

// Period kinds used in PeriodKey.
const (
	PeriodAllTime = "all"
	PeriodDay     = "day"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
)

var periodKinds = []string{PeriodAllTime, PeriodDay, PeriodWeek, PeriodMonth}

// PeriodKey names the UTC period of the given kind containing t,
// e.g. "day:2024-03-13", "week:2024-03-11" (Monday), "month:2024-03".
// The all-time key ignores t.
func PeriodKey(kind string, t time.Time) string {
	switch kind {
	case PeriodAllTime:
		return PeriodAllTime
	case PeriodWeek:
		return PeriodWeek + ":" + common.StartOfWeekUTC(t).Format(time.DateOnly)
	case PeriodMonth:
		return PeriodMonth + ":" + common.StartOfMonthUTC(t).Format("2006-01")
	default:
		return PeriodDay + ":" + common.TruncateToDateUTC(t).Format(time.DateOnly)
	}
}

// NewProfile returns a zeroed profile at level 1.
func NewProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:              userID,
		Level:               1,
		ActivityLog:         []ActivityLogEntry{},
		BadgeIDs:            []string{},
		AchievementProgress: map[string]AchievementProgress{},
		MissionProgress:     map[string]MissionProgress{},
		EventParticipation:  map[string]EventParticipation{},
		SeasonRewards:       map[string]SeasonRewardGrant{},
		SeasonTallies:       map[string]Tally{},
		PeriodTallies:       map[string]Tally{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	c := *p
	c.LastActivityDate = cloneTime(p.LastActivityDate)
	c.PointsReachedAt = cloneTime(p.PointsReachedAt)
	c.ActivityLog = slices.Clone(p.ActivityLog)
	c.BadgeIDs = slices.Clone(p.BadgeIDs)

	c.AchievementProgress = make(map[string]AchievementProgress, len(p.AchievementProgress))
	for id, ap := range p.AchievementProgress {
		ap.Components = slices.Clone(ap.Components)
		ap.CompletedAt = cloneTime(ap.CompletedAt)
		c.AchievementProgress[id] = ap
	}

	c.MissionProgress = make(map[string]MissionProgress, len(p.MissionProgress))
	for id, mp := range p.MissionProgress {
		mp.Components = slices.Clone(mp.Components)
		mp.CompletedAt = cloneTime(mp.CompletedAt)
		c.MissionProgress[id] = mp
	}

	c.EventParticipation = make(map[string]EventParticipation, len(p.EventParticipation))
	for id, ep := range p.EventParticipation {
		ep.Components = slices.Clone(ep.Components)
		ep.CompletedAt = cloneTime(ep.CompletedAt)
		c.EventParticipation[id] = ep
	}

	c.SeasonRewards = make(map[string]SeasonRewardGrant, len(p.SeasonRewards))
	for id, sr := range p.SeasonRewards {
		c.SeasonRewards[id] = sr
	}

	c.SeasonTallies = maps.Clone(p.SeasonTallies)
	if c.SeasonTallies == nil {
		c.SeasonTallies = map[string]Tally{}
	}
	c.PeriodTallies = maps.Clone(p.PeriodTallies)
	if c.PeriodTallies == nil {
		c.PeriodTallies = map[string]Tally{}
	}

	return &c
}

// EnsureMaps initializes nil collections, e.g. after decoding a stored profile.
func (p *Profile) EnsureMaps() {
	if p.ActivityLog == nil {
		p.ActivityLog = []ActivityLogEntry{}
	}
	if p.BadgeIDs == nil {
		p.BadgeIDs = []string{}
	}
	if p.AchievementProgress == nil {
		p.AchievementProgress = map[string]AchievementProgress{}
	}
	if p.MissionProgress == nil {
		p.MissionProgress = map[string]MissionProgress{}
	}
	if p.EventParticipation == nil {
		p.EventParticipation = map[string]EventParticipation{}
	}
	if p.SeasonRewards == nil {
		p.SeasonRewards = map[string]SeasonRewardGrant{}
	}
	if p.SeasonTallies == nil {
		p.SeasonTallies = map[string]Tally{}
	}
	if p.PeriodTallies == nil {
		p.PeriodTallies = map[string]Tally{}
	}
}

// HasBadge reports whether the user holds the badge.
func (p *Profile) HasBadge(badgeID string) bool {
	return slices.Contains(p.BadgeIDs, badgeID)
}

// AddBadge adds the badge if not already held. Returns false for duplicates.
func (p *Profile) AddBadge(badgeID string) bool {
	if badgeID == "" || p.HasBadge(badgeID) {
		return false
	}
	p.BadgeIDs = append(p.BadgeIDs, badgeID)
	return true
}

// HasCompletedAchievement reports whether the achievement is completed.
func (p *Profile) HasCompletedAchievement(achievementID string) bool {
	ap, ok := p.AchievementProgress[achievementID]
	return ok && ap.IsCompleted()
}

// CompletedAchievements returns the number of completed achievements.
func (p *Profile) CompletedAchievements() int {
	n := 0
	for _, ap := range p.AchievementProgress {
		if ap.IsCompleted() {
			n++
		}
	}
	return n
}

// AppendActivity appends an entry to the activity log, dropping the oldest
// entries beyond limit. A non-positive limit uses DefaultActivityLogLimit.
func (p *Profile) AppendActivity(entry ActivityLogEntry, limit int) {
	if limit <= 0 {
		limit = DefaultActivityLogLimit
	}
	p.ActivityLog = append(p.ActivityLog, entry)
	if overflow := len(p.ActivityLog) - limit; overflow > 0 {
		p.ActivityLog = slices.Clone(p.ActivityLog[overflow:])
	}
}

// CreditActivity adds one activity and its points to the tallies of every
// season whose range contains at, to the all-time tally, and to the day, week
// and month containing at.
// Period tallies are only kept for the periods containing now; older ones are
// dropped, so an activity arriving after its period ended is not credited there.
func (p *Profile) CreditActivity(points int64, at, now time.Time, seasons []*Season) {
	p.EnsureMaps()

	current := make(map[string]bool, len(periodKinds))
	for _, kind := range periodKinds {
		current[PeriodKey(kind, now)] = true
	}
	for key := range p.PeriodTallies {
		if !current[key] {
			delete(p.PeriodTallies, key)
		}
	}
	for _, kind := range periodKinds {
		if key := PeriodKey(kind, at); current[key] {
			p.PeriodTallies[key] = p.PeriodTallies[key].add(points, at)
		}
	}

	for _, s := range seasons {
		if s.Window().Contains(at) {
			p.SeasonTallies[s.ID] = p.SeasonTallies[s.ID].add(points, at)
		}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
