package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds worker settings read from the environment.
// Database settings live in pkg/db.
type AppConfig struct {
	CatalogPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ActivityStream string // Redis stream consumed for inbound activity events
	EventsStream   string // Redis stream receiving domain events
	ConsumerGroup  string
	ConsumerName   string

	LeaderboardInterval time.Duration
	LeaderboardTTL      time.Duration

	MaxConflictRetries int
	ActivityLogLimit   int
	LogLevel           slog.Level
}

// NewAppConfigFromEnv creates an AppConfig from environment variables with defaults.
func NewAppConfigFromEnv() *AppConfig {
	hostname, _ := os.Hostname()

	return &AppConfig{
		CatalogPath:         getEnv("CATALOG_PATH", "config/catalog.json"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		ActivityStream:      getEnv("ACTIVITY_STREAM", "tabanok:activity"),
		EventsStream:        getEnv("EVENTS_STREAM", "tabanok:events"),
		ConsumerGroup:       getEnv("CONSUMER_GROUP", "progression-engine"),
		ConsumerName:        getEnv("CONSUMER_NAME", getEnvDefaultName(hostname)),
		LeaderboardInterval: time.Duration(getEnvAsInt("LEADERBOARD_INTERVAL", 300)) * time.Second,
		LeaderboardTTL:      time.Duration(getEnvAsInt("LEADERBOARD_TTL", 900)) * time.Second,
		MaxConflictRetries:  getEnvAsInt("MAX_CONFLICT_RETRIES", 3),
		ActivityLogLimit:    getEnvAsInt("ACTIVITY_LOG_LIMIT", 100),
		LogLevel:            parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnvDefaultName(hostname string) string {
	if hostname == "" {
		return "worker-1"
	}
	return hostname
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
