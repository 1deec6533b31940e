// Command worker runs the progression engine: it consumes activity events from
// a Redis stream, applies them to Postgres-backed profiles, publishes domain
// events and keeps the cached leaderboards fresh.
//
// Usage:
//
//	worker                        # consume activities until SIGINT/SIGTERM
//	worker -settle-season=ID      # grant the season's rank rewards and exit
//
// SIGHUP reloads the rule catalog without restarting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tabanok/progression-engine/pkg/catalog"
	"github.com/tabanok/progression-engine/pkg/config"
	"github.com/tabanok/progression-engine/pkg/coordinator"
	"github.com/tabanok/progression-engine/pkg/db"
	"github.com/tabanok/progression-engine/pkg/intake"
	"github.com/tabanok/progression-engine/pkg/leaderboard"
	"github.com/tabanok/progression-engine/pkg/publisher"
	"github.com/tabanok/progression-engine/pkg/repository"
)

func main() {
	settleSeason := flag.String("settle-season", "", "settle the given season and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *settleSeason); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, settleSeason string) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	appCfg := config.NewAppConfigFromEnv()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: appCfg.LogLevel}))
	slog.SetDefault(logger)

	catalogCfg, err := config.NewCatalogLoader(appCfg.CatalogPath, logger).LoadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	rules := catalog.NewInMemoryRuleCatalog(catalogCfg, appCfg.CatalogPath, logger)

	database, err := db.Connect(db.NewConfigFromEnv())
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := repository.EnsureSchema(ctx, database); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}
	store := repository.NewPostgresProfileStore(database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     appCfg.RedisAddr,
		Password: appCfg.RedisPassword,
		DB:       appCfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	streamCfg := publisher.DefaultRedisStreamConfig()
	streamCfg.Stream = appCfg.EventsStream
	events := publisher.Multi{
		publisher.NewRedisStreamPublisher(rdb, streamCfg, logger),
		publisher.NewLogPublisher(logger),
	}

	aggregator := leaderboard.NewAggregator(store, logger)
	awards := coordinator.NewAwardCoordinator(store, rules, events, aggregator, coordinator.Options{
		MaxConflictRetries: appCfg.MaxConflictRetries,
		ActivityLogLimit:   appCfg.ActivityLogLimit,
	}, logger)

	if settleSeason != "" {
		result, err := awards.SettleSeason(ctx, settleSeason)
		if err != nil {
			return err
		}
		logger.Info("Settlement finished",
			"season_id", result.SeasonID,
			"granted", len(result.Granted),
			"skipped", result.Skipped,
		)
		return nil
	}

	go reloadOnHangup(ctx, rules, logger)

	boards := leaderboard.NewScheduler(aggregator,
		leaderboard.NewRedisCache(rdb, appCfg.LeaderboardTTL),
		leaderboard.DefaultBoards(),
		appCfg.LeaderboardInterval,
		logger,
	)
	if err := boards.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := boards.Stop(); err != nil {
			logger.Error("Failed to stop leaderboard scheduler", "error", err)
		}
	}()

	consumer := intake.NewStreamConsumer(rdb, awards, intake.StreamConfig{
		Stream:   appCfg.ActivityStream,
		Group:    appCfg.ConsumerGroup,
		Consumer: appCfg.ConsumerName,
	}, logger)

	logger.Info("Worker started",
		"catalog", appCfg.CatalogPath,
		"activity_stream", appCfg.ActivityStream,
		"events_stream", appCfg.EventsStream,
		"leaderboard_interval", appCfg.LeaderboardInterval.String(),
	)

	start := time.Now()
	err = consumer.Run(ctx)
	logger.Info("Worker stopped", "uptime", time.Since(start).Round(time.Second).String())
	return err
}

func reloadOnHangup(ctx context.Context, rules catalog.RuleCatalog, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := rules.Reload(); err != nil {
				logger.Error("Catalog reload failed, keeping previous catalog", "error", err)
				continue
			}
			logger.Info("Catalog reloaded")
		}
	}
}
