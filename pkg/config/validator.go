package config

import (
	"errors"
	"fmt"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// Validator validates rule catalogs.
// It ensures all business rules are met before the application starts.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of the catalog.
// It checks for:
// - A well-formed level rule
// - Unique IDs per entry kind and unique activity categories
// - Well-formed criteria on achievements, missions and special events
// - References to badges, achievements and seasons that exist
// - Date ranges with start <= end, and events contained in their season
//
// Returns an error describing the first validation failure encountered.
func (v *Validator) Validate(c *Catalog) error {
	if err := v.validateLevels(c.Levels); err != nil {
		return fmt.Errorf("invalid levels: %w", err)
	}

	if len(c.Activities) == 0 {
		return errors.New("catalog must have at least one activity rule")
	}

	// First pass: validate entries and collect IDs
	categories := make(map[string]bool)
	for _, a := range c.Activities {
		if err := v.validateActivity(a); err != nil {
			return fmt.Errorf("invalid activity '%s': %w", a.Category, err)
		}
		if categories[a.Category] {
			return fmt.Errorf("duplicate activity category: %s", a.Category)
		}
		categories[a.Category] = true
	}

	badges := make(map[string]bool)
	for _, b := range c.Badges {
		if err := v.validateBadge(b); err != nil {
			return fmt.Errorf("invalid badge '%s': %w", b.ID, err)
		}
		if badges[b.ID] {
			return fmt.Errorf("duplicate badge ID: %s", b.ID)
		}
		badges[b.ID] = true
	}

	achievements := make(map[string]bool)
	for _, a := range c.Achievements {
		if err := v.validateAchievement(a); err != nil {
			return fmt.Errorf("invalid achievement '%s': %w", a.ID, err)
		}
		if achievements[a.ID] {
			return fmt.Errorf("duplicate achievement ID: %s", a.ID)
		}
		achievements[a.ID] = true
	}

	missions := make(map[string]bool)
	for _, m := range c.Missions {
		if err := v.validateMission(m); err != nil {
			return fmt.Errorf("invalid mission '%s': %w", m.ID, err)
		}
		if missions[m.ID] {
			return fmt.Errorf("duplicate mission ID: %s", m.ID)
		}
		missions[m.ID] = true
	}

	seasons := make(map[string]*domain.Season)
	for _, s := range c.Seasons {
		if err := v.validateSeason(s); err != nil {
			return fmt.Errorf("invalid season '%s': %w", s.ID, err)
		}
		if _, exists := seasons[s.ID]; exists {
			return fmt.Errorf("duplicate season ID: %s", s.ID)
		}
		seasons[s.ID] = s
	}

	events := make(map[string]bool)
	for _, e := range c.SpecialEvents {
		if err := v.validateSpecialEvent(e); err != nil {
			return fmt.Errorf("invalid special event '%s': %w", e.ID, err)
		}
		if events[e.ID] {
			return fmt.Errorf("duplicate special event ID: %s", e.ID)
		}
		events[e.ID] = true
	}

	// Second pass: validate references
	for _, a := range c.Achievements {
		if a.BadgeID != "" && !badges[a.BadgeID] {
			return fmt.Errorf("achievement '%s' references unknown badge '%s'", a.ID, a.BadgeID)
		}
	}
	for _, m := range c.Missions {
		if m.BadgeID != "" && !badges[m.BadgeID] {
			return fmt.Errorf("mission '%s' references unknown badge '%s'", m.ID, m.BadgeID)
		}
	}
	for _, b := range c.Badges {
		for _, id := range b.Requirement.RequiredAchievements {
			if !achievements[id] {
				return fmt.Errorf("badge '%s' requires unknown achievement '%s'", b.ID, id)
			}
		}
	}
	for _, s := range c.Seasons {
		for _, r := range s.Rewards {
			if r.BadgeID != "" && !badges[r.BadgeID] {
				return fmt.Errorf("season '%s' rewards unknown badge '%s'", s.ID, r.BadgeID)
			}
		}
	}
	for _, e := range c.SpecialEvents {
		if e.BadgeID != "" && !badges[e.BadgeID] {
			return fmt.Errorf("special event '%s' references unknown badge '%s'", e.ID, e.BadgeID)
		}
		for _, id := range e.Requirements.PrerequisiteAchievements {
			if !achievements[id] {
				return fmt.Errorf("special event '%s' has invalid prerequisite: '%s' does not exist", e.ID, id)
			}
		}
		if e.SeasonID == "" {
			continue
		}
		season, ok := seasons[e.SeasonID]
		if !ok {
			return fmt.Errorf("special event '%s' references unknown season '%s'", e.ID, e.SeasonID)
		}
		if !e.Window().Within(season.Window()) {
			return fmt.Errorf("special event '%s' dates must lie within season '%s'", e.ID, season.ID)
		}
	}

	return nil
}

// validateLevels validates the level curve configuration.
func (v *Validator) validateLevels(l domain.LevelRule) error {
	if len(l.Thresholds) > 0 {
		if l.Thresholds[0] != 0 {
			return errors.New("thresholds[0] must be 0 (level 1 starts at zero points)")
		}
		for i := 1; i < len(l.Thresholds); i++ {
			if l.Thresholds[i] <= l.Thresholds[i-1] {
				return fmt.Errorf("thresholds must be strictly increasing (index %d)", i)
			}
		}
		return nil
	}
	if l.PointsPerLevel <= 0 {
		return errors.New("points_per_level must be positive")
	}
	return nil
}

// validateActivity validates a single activity rule.
func (v *Validator) validateActivity(a *domain.ActivityRule) error {
	if a.Category == "" {
		return errors.New("category cannot be empty")
	}
	if a.BasePoints < 0 || a.PointsPerValue < 0 {
		return errors.New("points cannot be negative")
	}
	if err := checkPointsLimit("base_points", a.BasePoints); err != nil {
		return err
	}
	return checkPointsLimit("points_per_value", a.PointsPerValue)
}

func checkPointsLimit(field string, points int64) error {
	if points > domain.MaxRewardPoints {
		return fmt.Errorf("%s must not exceed %d", field, domain.MaxRewardPoints)
	}
	return nil
}

// validateBadge validates a single badge.
func (v *Validator) validateBadge(b *domain.Badge) error {
	if b.ID == "" {
		return errors.New("badge ID cannot be empty")
	}
	if b.Name == "" {
		return errors.New("badge name cannot be empty")
	}
	if b.Tier != "" && !b.Tier.IsValid() {
		return fmt.Errorf("invalid tier '%s'", b.Tier)
	}
	r := b.Requirement
	if r.MinPoints < 0 || r.MinLevel < 0 || r.MinStreak < 0 {
		return errors.New("requirement thresholds cannot be negative")
	}
	return nil
}

// validateAchievement validates a single achievement.
func (v *Validator) validateAchievement(a *domain.Achievement) error {
	if a.ID == "" {
		return errors.New("achievement ID cannot be empty")
	}
	if a.Name == "" {
		return errors.New("achievement name cannot be empty")
	}
	if a.Tier != "" && !a.Tier.IsValid() {
		return fmt.Errorf("invalid tier '%s'", a.Tier)
	}
	if a.RewardPoints < 0 {
		return errors.New("reward_points cannot be negative")
	}
	if err := checkPointsLimit("reward_points", a.RewardPoints); err != nil {
		return err
	}
	return ValidateCriteria(a.Criteria)
}

// validateMission validates a single mission.
func (v *Validator) validateMission(m *domain.Mission) error {
	if m.ID == "" {
		return errors.New("mission ID cannot be empty")
	}
	if m.Name == "" {
		return errors.New("mission name cannot be empty")
	}
	if !m.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency '%s' (must be 'daily', 'weekly', 'monthly', or 'unique')", m.Frequency)
	}
	if m.RewardPoints < 0 {
		return errors.New("reward_points cannot be negative")
	}
	if err := checkPointsLimit("reward_points", m.RewardPoints); err != nil {
		return err
	}
	if m.Window != nil && m.Window.End.Before(m.Window.Start) {
		return errors.New("window end must not be before start")
	}
	return ValidateCriteria(m.Criteria)
}

// validateSeason validates a single season.
func (v *Validator) validateSeason(s *domain.Season) error {
	if s.ID == "" {
		return errors.New("season ID cannot be empty")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if s.EndDate.Before(s.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	ranks := make(map[int]bool)
	for _, r := range s.Rewards {
		if r.Rank <= 0 {
			return errors.New("reward rank must be positive")
		}
		if ranks[r.Rank] {
			return fmt.Errorf("duplicate reward rank %d", r.Rank)
		}
		if r.Points < 0 {
			return errors.New("reward points cannot be negative")
		}
		if err := checkPointsLimit("reward points", r.Points); err != nil {
			return err
		}
		ranks[r.Rank] = true
	}
	return nil
}

// validateSpecialEvent validates a single special event.
func (v *Validator) validateSpecialEvent(e *domain.SpecialEvent) error {
	if e.ID == "" {
		return errors.New("special event ID cannot be empty")
	}
	if e.Name == "" {
		return errors.New("special event name cannot be empty")
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if e.EndDate.Before(e.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	if e.Requirements.MinLevel < 0 {
		return errors.New("min_level cannot be negative")
	}
	if e.RewardPoints < 0 {
		return errors.New("reward_points cannot be negative")
	}
	if err := checkPointsLimit("reward_points", e.RewardPoints); err != nil {
		return err
	}
	return ValidateCriteria(e.Criteria)
}

// ValidateCriteria checks that a criteria is well-formed for its type.
func ValidateCriteria(c domain.Criteria) error {
	switch c.Type {
	case domain.CriteriaCountThreshold, domain.CriteriaScoreThreshold, domain.CriteriaStreakThreshold:
		if c.Target <= 0 {
			return fmt.Errorf("%s criteria target must be positive", c.Type)
		}
	case domain.CriteriaBooleanFlag:
		// No target; completes on first match
	case domain.CriteriaCompositeAll:
		if len(c.Children) == 0 {
			return errors.New("composite_all criteria must have at least one child")
		}
		for i, child := range c.Children {
			if child.Type == domain.CriteriaCompositeAll {
				return fmt.Errorf("composite_all child %d cannot be composite", i)
			}
			if err := ValidateCriteria(child); err != nil {
				return fmt.Errorf("composite_all child %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("invalid criteria type '%s'", c.Type)
	}
	return nil
}
