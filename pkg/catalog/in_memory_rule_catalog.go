package catalog

import (
	"log/slog"
	"sync"

	"github.com/tabanok/progression-engine/pkg/config"
	"github.com/tabanok/progression-engine/pkg/domain"
)

// InMemoryRuleCatalog provides O(1) in-memory lookups for rule catalog entries.
// All maps are built from a validated config.Catalog and provide thread-safe read access.
// Slices keep catalog-declared order for deterministic evaluation.
type InMemoryRuleCatalog struct {
	levels            domain.LevelRule
	activitiesByCat   map[string]*domain.ActivityRule // "lesson_completed" -> rule
	achievementsByID  map[string]*domain.Achievement  // "achievement-id" -> Achievement
	achievements      []*domain.Achievement           // All achievements (ordered)
	missionsByID      map[string]*domain.Mission      // "mission-id" -> Mission
	missions          []*domain.Mission               // All missions (ordered)
	badgesByID        map[string]*domain.Badge        // "badge-id" -> Badge
	badges            []*domain.Badge                 // All badges (ordered)
	seasonsByID       map[string]*domain.Season       // "season-id" -> Season
	seasons           []*domain.Season                // All seasons (ordered)
	specialEventsByID map[string]*domain.SpecialEvent // "event-id" -> SpecialEvent
	specialEvents     []*domain.SpecialEvent          // All special events (ordered)
	catalogPath       string                          // Path to catalog file (for reload)
	mu                sync.RWMutex                    // Protects all maps
	logger            *slog.Logger
}

// NewInMemoryRuleCatalog creates a new catalog from the provided configuration.
// The catalog is immediately built and ready for lookups.
//
// Parameters:
//   - cfg: Validated catalog configuration
//   - catalogPath: Path to catalog file (used for reload operation)
//   - logger: Structured logger for operational logging
func NewInMemoryRuleCatalog(cfg *config.Catalog, catalogPath string, logger *slog.Logger) *InMemoryRuleCatalog {
	if logger == nil {
		logger = slog.Default()
	}

	c := &InMemoryRuleCatalog{
		catalogPath: catalogPath,
		logger:      logger,
	}

	c.build(cfg)

	return c
}

// build constructs all indexes from the configuration.
// This method is called during construction and reload.
// It replaces all existing catalog data.
func (c *InMemoryRuleCatalog) build(cfg *config.Catalog) {
	activities := make(map[string]*domain.ActivityRule, len(cfg.Activities))
	for _, a := range cfg.Activities {
		activities[a.Category] = a
	}

	achievements := make(map[string]*domain.Achievement, len(cfg.Achievements))
	for _, a := range cfg.Achievements {
		achievements[a.ID] = a
	}

	missions := make(map[string]*domain.Mission, len(cfg.Missions))
	for _, m := range cfg.Missions {
		missions[m.ID] = m
	}

	badges := make(map[string]*domain.Badge, len(cfg.Badges))
	for _, b := range cfg.Badges {
		badges[b.ID] = b
	}

	seasons := make(map[string]*domain.Season, len(cfg.Seasons))
	for _, s := range cfg.Seasons {
		seasons[s.ID] = s
	}

	events := make(map[string]*domain.SpecialEvent, len(cfg.SpecialEvents))
	for _, e := range cfg.SpecialEvents {
		events[e.ID] = e
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.levels = cfg.Levels
	c.activitiesByCat = activities
	c.achievementsByID = achievements
	c.achievements = cfg.Achievements
	c.missionsByID = missions
	c.missions = cfg.Missions
	c.badgesByID = badges
	c.badges = cfg.Badges
	c.seasonsByID = seasons
	c.seasons = cfg.Seasons
	c.specialEventsByID = events
	c.specialEvents = cfg.SpecialEvents

	c.logger.Info("Rule catalog built successfully",
		"activities", len(activities),
		"achievements", len(achievements),
		"missions", len(missions),
		"badges", len(badges),
		"seasons", len(seasons),
		"special_events", len(events),
	)
}

// LevelRule returns the configured level rule.
func (c *InMemoryRuleCatalog) LevelRule() domain.LevelRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.levels
}

// GetActivityRule retrieves the rule for an activity category.
// Returns nil if the category is unknown.
func (c *InMemoryRuleCatalog) GetActivityRule(category string) *domain.ActivityRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.activitiesByCat[category]
}

// GetAchievement retrieves an achievement by its unique ID.
func (c *InMemoryRuleCatalog) GetAchievement(achievementID string) *domain.Achievement {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.achievementsByID[achievementID]
}

// GetAllAchievements returns all achievements in catalog order.
// Return the slice directly - it's safe because entries are immutable and
// build replaces slices rather than mutating them.
func (c *InMemoryRuleCatalog) GetAllAchievements() []*domain.Achievement {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.achievements
}

// GetMission retrieves a mission by its unique ID.
func (c *InMemoryRuleCatalog) GetMission(missionID string) *domain.Mission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.missionsByID[missionID]
}

// GetAllMissions returns all missions in catalog order.
func (c *InMemoryRuleCatalog) GetAllMissions() []*domain.Mission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.missions
}

// GetBadge retrieves a badge by its unique ID.
func (c *InMemoryRuleCatalog) GetBadge(badgeID string) *domain.Badge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.badgesByID[badgeID]
}

// GetAllBadges returns all badges in catalog order.
func (c *InMemoryRuleCatalog) GetAllBadges() []*domain.Badge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.badges
}

// GetSeason retrieves a season by its unique ID.
func (c *InMemoryRuleCatalog) GetSeason(seasonID string) *domain.Season {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.seasonsByID[seasonID]
}

// GetAllSeasons returns all seasons in catalog order.
func (c *InMemoryRuleCatalog) GetAllSeasons() []*domain.Season {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.seasons
}

// GetSpecialEvent retrieves a special event by its unique ID.
func (c *InMemoryRuleCatalog) GetSpecialEvent(eventID string) *domain.SpecialEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.specialEventsByID[eventID]
}

// GetAllSpecialEvents returns all special events in catalog order.
func (c *InMemoryRuleCatalog) GetAllSpecialEvents() []*domain.SpecialEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.specialEvents
}

// Reload reloads the catalog from the catalog file.
// Administrators publish a new catalog version by replacing the file and
// signalling the worker (SIGHUP).
//
// Returns:
//   - error: If the file cannot be read or validation fails
func (c *InMemoryRuleCatalog) Reload() error {
	loader := config.NewCatalogLoader(c.catalogPath, c.logger)
	newCatalog, err := loader.LoadCatalog()
	if err != nil {
		return err
	}

	c.build(newCatalog)

	c.logger.Info("Rule catalog reloaded successfully")

	return nil
}
