package domain

import "time"

// Tier is the prestige tier of an achievement or badge.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// IsValid returns true if the tier is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	default:
		return false
	}
}

// MissionFrequency defines how often a mission's progress resets.
//
// Usage in reward evaluation:
//   - daily: progress resets at 00:00 UTC
//   - weekly: progress resets on Monday 00:00 UTC
//   - monthly: progress resets on the 1st of the month 00:00 UTC
//   - unique: progress never resets; the mission completes once per user
type MissionFrequency string

const (
	FrequencyDaily   MissionFrequency = "daily"
	FrequencyWeekly  MissionFrequency = "weekly"
	FrequencyMonthly MissionFrequency = "monthly"
	FrequencyUnique  MissionFrequency = "unique"
)

// IsValid returns true if the frequency is a valid type.
func (f MissionFrequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyUnique:
		return true
	default:
		return false
	}
}

// TimeWindow is an inclusive [Start, End] range.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the window (both bounds inclusive).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Within reports whether w lies entirely inside outer.
func (w TimeWindow) Within(outer TimeWindow) bool {
	return !w.Start.Before(outer.Start) && !w.End.After(outer.End)
}

// LevelRule configures the points -> level curve.
// Exactly one of PointsPerLevel or Thresholds is used; Thresholds wins when set.
type LevelRule struct {
	// PointsPerLevel gives threshold(L) = L * PointsPerLevel for L >= 2.
	PointsPerLevel int64 `json:"points_per_level,omitempty"`

	// Thresholds[i] is the cumulative points needed for level i+1. Thresholds[0] must be 0.
	Thresholds []int64 `json:"thresholds,omitempty"`
}

// ActivityRule defines the base reward for one activity category.
type ActivityRule struct {
	Category       string `json:"category"`
	Description    string `json:"description,omitempty"`
	BasePoints     int64  `json:"base_points"`
	PointsPerValue int64  `json:"points_per_value"`
}

// PointsFor returns the points awarded for a single activity with the given value,
// saturating at the int64 bounds.
func (r *ActivityRule) PointsFor(value int64) int64 {
	return SaturatingAdd(r.BasePoints, SaturatingMul(r.PointsPerValue, value))
}

// Achievement is a one-shot goal completed when its criteria are satisfied.
type Achievement struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tier         Tier     `json:"tier"`
	Criteria     Criteria `json:"criteria"`
	RewardPoints int64    `json:"reward_points"`
	BadgeID      string   `json:"badge_id,omitempty"` // Optional badge granted on completion
}

// Mission is a (possibly recurring) goal. Missions with a Window are "limited"
// and only make progress while the window is open.
type Mission struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Frequency    MissionFrequency `json:"frequency"`
	Criteria     Criteria         `json:"criteria"`
	RewardPoints int64            `json:"reward_points"`
	BadgeID      string           `json:"badge_id,omitempty"`
	Window       *TimeWindow      `json:"window,omitempty"`
}

// IsLimited reports whether the mission has a time window.
func (m *Mission) IsLimited() bool {
	return m.Window != nil
}

// BadgeRequirement defines when a badge unlocks on its own.
// A zero requirement means the badge is only granted by achievements, missions or seasons.
type BadgeRequirement struct {
	MinPoints            int64    `json:"min_points,omitempty"`
	MinLevel             int      `json:"min_level,omitempty"`
	MinStreak            int      `json:"min_streak,omitempty"`
	RequiredAchievements []string `json:"required_achievements,omitempty"`
}

// IsZero reports whether the requirement has no conditions.
func (r BadgeRequirement) IsZero() bool {
	return r.MinPoints == 0 && r.MinLevel == 0 && r.MinStreak == 0 && len(r.RequiredAchievements) == 0
}

// Badge is a collectible granted at most once per user.
type Badge struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Tier        Tier             `json:"tier"`
	Requirement BadgeRequirement `json:"requirement"`
	Benefits    []string         `json:"benefits,omitempty"`
}

// SeasonReward is granted to users finishing a season within the top Rank positions.
type SeasonReward struct {
	Rank    int    `json:"rank"`
	Points  int64  `json:"points"`
	BadgeID string `json:"badge_id,omitempty"`
}

// Season is a cultural season (e.g. Bëtscnaté) grouping special events.
type Season struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	Culture     map[string]string `json:"culture,omitempty"` // Cultural metadata, e.g. "significance", "traditions"
	Rewards     []SeasonReward    `json:"rewards,omitempty"`
}

// Window returns the season's date range.
func (s *Season) Window() TimeWindow {
	return TimeWindow{Start: s.StartDate, End: s.EndDate}
}

// EventRequirements gate participation in a special event.
type EventRequirements struct {
	PrerequisiteAchievements []string `json:"prerequisite_achievements,omitempty"`
	MinLevel                 int      `json:"min_level,omitempty"`
}

// SpecialEvent is a time-boxed event users join explicitly.
type SpecialEvent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	SeasonID     string            `json:"season_id,omitempty"`
	Type         string            `json:"type"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      time.Time         `json:"end_date"`
	Requirements EventRequirements `json:"requirements"`
	Criteria     Criteria          `json:"criteria"`
	RewardPoints int64             `json:"reward_points"`
	BadgeID      string            `json:"badge_id,omitempty"`
}

// Window returns the event's date range.
func (e *SpecialEvent) Window() TimeWindow {
	return TimeWindow{Start: e.StartDate, End: e.EndDate}
}

// IsActive reports whether the event is running at now.
func (e *SpecialEvent) IsActive(now time.Time) bool {
	return e.Window().Contains(now)
}
