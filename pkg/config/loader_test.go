package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabanok/progression-engine/pkg/domain"
)

func TestCatalogLoader_LoadCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("successful load", func(t *testing.T) {
		tmpFile := createTempCatalogFile(t, `{
			"activities": [
				{"category": "lesson_completed", "base_points": 20}
			],
			"achievements": [
				{
					"id": "first-lesson",
					"name": "First lesson",
					"criteria": {"type": "count_threshold", "category": "lesson_completed", "target": 1},
					"reward_points": 10
				}
			],
			"missions": [
				{
					"id": "daily-lesson",
					"name": "Daily lesson",
					"criteria": {"type": "count_threshold", "category": "lesson_completed", "target": 1},
					"reward_points": 5
				}
			]
		}`)

		loader := NewCatalogLoader(tmpFile, logger)
		catalog, err := loader.LoadCatalog()

		if err != nil {
			t.Fatalf("LoadCatalog() unexpected error = %v", err)
		}

		if len(catalog.Achievements) != 1 {
			t.Errorf("expected 1 achievement, got %d", len(catalog.Achievements))
		}

		// Defaults are applied
		if catalog.Levels.PointsPerLevel != DefaultPointsPerLevel {
			t.Errorf("expected default points_per_level %d, got %d", DefaultPointsPerLevel, catalog.Levels.PointsPerLevel)
		}
		if catalog.Missions[0].Frequency != domain.FrequencyUnique {
			t.Errorf("expected default frequency 'unique', got %q", catalog.Missions[0].Frequency)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		loader := NewCatalogLoader("/nonexistent/catalog.json", logger)
		_, err := loader.LoadCatalog()

		if err == nil {
			t.Fatal("LoadCatalog() expected error, got nil")
		}

		if !strings.Contains(err.Error(), "failed to read catalog file") {
			t.Errorf("expected 'failed to read catalog file' error, got %v", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpFile := createTempCatalogFile(t, `{invalid json}`)

		loader := NewCatalogLoader(tmpFile, logger)
		_, err := loader.LoadCatalog()

		if err == nil {
			t.Fatal("LoadCatalog() expected error, got nil")
		}

		if !strings.Contains(err.Error(), "failed to parse catalog JSON") {
			t.Errorf("expected 'failed to parse catalog JSON' error, got %v", err)
		}
	})

	t.Run("validation failure - no activities", func(t *testing.T) {
		tmpFile := createTempCatalogFile(t, `{"activities": []}`)

		loader := NewCatalogLoader(tmpFile, logger)
		_, err := loader.LoadCatalog()

		if err == nil {
			t.Fatal("LoadCatalog() expected error, got nil")
		}

		if !strings.Contains(err.Error(), "catalog validation failed") {
			t.Errorf("expected 'catalog validation failed' error, got %v", err)
		}

		if !strings.Contains(err.Error(), "at least one activity rule") {
			t.Errorf("expected validation error message, got %v", err)
		}
	})

	t.Run("dates are normalized to UTC", func(t *testing.T) {
		tmpFile := createTempCatalogFile(t, `{
			"activities": [{"category": "lesson_completed", "base_points": 1}],
			"seasons": [
				{"id": "s1", "start_date": "2025-02-01T00:00:00-05:00", "end_date": "2025-03-01T00:00:00-05:00"}
			]
		}`)

		catalog, err := NewCatalogLoader(tmpFile, logger).LoadCatalog()
		if err != nil {
			t.Fatalf("LoadCatalog() unexpected error = %v", err)
		}

		start := catalog.Seasons[0].StartDate
		if start.Location().String() != "UTC" || start.Hour() != 5 {
			t.Errorf("expected 2025-02-01T05:00Z, got %v", start)
		}
	})
}

func TestCatalogLoader_SampleCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	catalog, err := NewCatalogLoader(filepath.Join("..", "..", "config", "catalog.json"), logger).LoadCatalog()
	if err != nil {
		t.Fatalf("sample catalog must be valid: %v", err)
	}

	if len(catalog.Achievements) == 0 || len(catalog.Missions) == 0 || len(catalog.SpecialEvents) == 0 {
		t.Error("sample catalog should exercise achievements, missions and special events")
	}
}

// createTempCatalogFile creates a temporary catalog file with the given content.
func createTempCatalogFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp catalog: %v", err)
	}

	return path
}
