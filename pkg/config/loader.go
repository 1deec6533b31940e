package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// CatalogLoader loads and validates the rule catalog from a JSON file.
// It performs file reading, JSON parsing, defaulting, and comprehensive validation.
type CatalogLoader struct {
	catalogPath string
	validator   *Validator
	logger      *slog.Logger
}

// NewCatalogLoader creates a new CatalogLoader instance.
//
// Parameters:
//   - catalogPath: Path to the catalog.json file
//   - logger: Structured logger for operational logging
func NewCatalogLoader(catalogPath string, logger *slog.Logger) *CatalogLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogLoader{
		catalogPath: catalogPath,
		validator:   NewValidator(),
		logger:      logger,
	}
}

// LoadCatalog loads the catalog file and returns a validated Catalog.
// This method performs four steps:
// 1. Read the catalog file from disk
// 2. Parse JSON into Catalog struct
// 3. Apply defaults and normalize dates to UTC
// 4. Validate all business rules
//
// If any step fails, returns an error and the application should exit.
// This is a "fail fast" operation - an invalid catalog prevents startup.
func (l *CatalogLoader) LoadCatalog() (*Catalog, error) {
	// Step 1: Read file
	data, err := os.ReadFile(l.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	catalog, err := l.Parse(data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Catalog loaded successfully",
		"activities", len(catalog.Activities),
		"achievements", len(catalog.Achievements),
		"missions", len(catalog.Missions),
		"badges", len(catalog.Badges),
		"seasons", len(catalog.Seasons),
		"special_events", len(catalog.SpecialEvents),
		"catalog_path", l.catalogPath,
	)

	return catalog, nil
}

// Parse parses and validates catalog JSON that was read elsewhere.
func (l *CatalogLoader) Parse(data []byte) (*Catalog, error) {
	// Step 2: Parse JSON
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	// Step 3: Defaults
	applyDefaults(&catalog)

	// Step 4: Validate
	if err := l.validator.Validate(&catalog); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}

	return &catalog, nil
}

// applyDefaults fills optional fields so the rest of the engine never sees zero values.
func applyDefaults(c *Catalog) {
	if c.Levels.PointsPerLevel == 0 && len(c.Levels.Thresholds) == 0 {
		c.Levels.PointsPerLevel = DefaultPointsPerLevel
	}

	for _, m := range c.Missions {
		if m.Frequency == "" {
			m.Frequency = domain.FrequencyUnique
		}
		if m.Window != nil {
			m.Window.Start = m.Window.Start.UTC()
			m.Window.End = m.Window.End.UTC()
		}
	}

	for _, s := range c.Seasons {
		s.StartDate = s.StartDate.UTC()
		s.EndDate = s.EndDate.UTC()
	}

	for _, e := range c.SpecialEvents {
		e.StartDate = e.StartDate.UTC()
		e.EndDate = e.EndDate.UTC()
	}
}
