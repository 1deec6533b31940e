package catalog

import "github.com/tabanok/progression-engine/pkg/domain"

// RuleCatalog provides O(1) in-memory lookups for the reward rules.
// The catalog is built at application startup from the catalog.json file.
// All lookups are read-only and thread-safe; returned entries must not be modified.
type RuleCatalog interface {
	// LevelRule returns the configured points -> level rule.
	LevelRule() domain.LevelRule

	// GetActivityRule retrieves the base reward rule for an activity category.
	// Returns nil if the category is unknown.
	// Time complexity: O(1)
	GetActivityRule(category string) *domain.ActivityRule

	// GetAchievement retrieves an achievement by its unique ID.
	// Returns nil if the achievement does not exist.
	// Time complexity: O(1)
	GetAchievement(achievementID string) *domain.Achievement

	// GetAllAchievements returns all achievements in catalog-declared order.
	// Evaluation order, and therefore completion order, follows this slice.
	GetAllAchievements() []*domain.Achievement

	// GetMission retrieves a mission by its unique ID, or nil.
	GetMission(missionID string) *domain.Mission

	// GetAllMissions returns all missions in catalog-declared order.
	GetAllMissions() []*domain.Mission

	// GetBadge retrieves a badge by its unique ID, or nil.
	GetBadge(badgeID string) *domain.Badge

	// GetAllBadges returns all badges in catalog-declared order.
	GetAllBadges() []*domain.Badge

	// GetSeason retrieves a season by its unique ID, or nil.
	GetSeason(seasonID string) *domain.Season

	// GetAllSeasons returns all seasons in catalog-declared order.
	GetAllSeasons() []*domain.Season

	// GetSpecialEvent retrieves a special event by its unique ID, or nil.
	GetSpecialEvent(eventID string) *domain.SpecialEvent

	// GetAllSpecialEvents returns all special events in catalog-declared order.
	GetAllSpecialEvents() []*domain.SpecialEvent

	// Reload reloads the catalog from the catalog file.
	// On failure the previous catalog stays in place.
	Reload() error
}
