package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// BoardSpec describes one precomputed board.
type BoardSpec struct {
	Category Category
	Window   string // WindowAllTime, WindowDaily, WindowWeekly or WindowMonthly
	Limit    int    // Entries kept; 0 keeps all
}

// Key returns the board key.
func (b BoardSpec) Key() string {
	return BoardKey(b.Category, b.Window)
}

// DefaultBoards returns the boards refreshed by the worker.
func DefaultBoards() []BoardSpec {
	return []BoardSpec{
		{Category: CategoryPoints, Window: WindowAllTime, Limit: 100},
		{Category: CategoryPoints, Window: WindowWeekly, Limit: 100},
		{Category: CategoryPoints, Window: WindowMonthly, Limit: 100},
		{Category: CategoryAchievements, Window: WindowAllTime, Limit: 100},
		{Category: CategoryStreak, Window: WindowAllTime, Limit: 100},
		{Category: CategoryActivities, Window: WindowWeekly, Limit: 100},
	}
}

// Scheduler refreshes boards on a fixed interval.
type Scheduler struct {
	aggregator *Aggregator
	store      BoardStore
	boards     []BoardSpec
	interval   time.Duration
	clock      func() time.Time
	logger     *slog.Logger

	sched gocron.Scheduler
}

// NewScheduler creates a scheduler. Start must be called to begin refreshing.
func NewScheduler(aggregator *Aggregator, store BoardStore, boards []BoardSpec, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		aggregator: aggregator,
		store:      store,
		boards:     boards,
		interval:   interval,
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Start schedules the refresh job, running it once immediately.
// Runs never overlap: a slow refresh delays the next one.
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Leaderboard refresh failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule leaderboard refresh: %w", err)
	}

	sched.Start()
	s.sched = sched

	s.logger.InfoContext(ctx, "Leaderboard scheduler started",
		"interval", s.interval.String(),
		"boards", len(s.boards),
	)
	return nil
}

// Stop shuts the scheduler down, waiting for a running refresh to finish.
func (s *Scheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// RunOnce recomputes and stores every board. A failing board does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock()
	var errs []error

	for _, b := range s.boards {
		w, err := WindowFor(b.Window, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", b.Key(), err))
			continue
		}

		entries, err := s.aggregator.Top(ctx, b.Category, w, b.Limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", b.Key(), err))
			continue
		}

		if err := s.store.Store(ctx, b.Key(), entries); err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", b.Key(), err))
			continue
		}

		s.logger.DebugContext(ctx, "Leaderboard refreshed", "board", b.Key(), "entries", len(entries))
	}

	return errors.Join(errs...)
}
