package config

import "github.com/tabanok/progression-engine/pkg/domain"

// DefaultPointsPerLevel is used when the catalog configures no level rule.
const DefaultPointsPerLevel int64 = 100

// Catalog represents the rule catalog loaded from catalog.json.
// This structure is parsed from JSON and validated during application startup.
// Entries are declared in evaluation order: when one activity satisfies several
// achievements, completions follow the order of this file.
type Catalog struct {
	Levels        domain.LevelRule       `json:"levels"`
	Activities    []*domain.ActivityRule `json:"activities"`
	Achievements  []*domain.Achievement  `json:"achievements"`
	Missions      []*domain.Mission      `json:"missions"`
	Badges        []*domain.Badge        `json:"badges"`
	Seasons       []*domain.Season       `json:"seasons"`
	SpecialEvents []*domain.SpecialEvent `json:"special_events"`
}
