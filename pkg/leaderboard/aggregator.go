// Package leaderboard ranks profiles by points, achievements, streaks and
// activity counts, and publishes the rankings to a Redis cache on a schedule.
package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
	"github.com/tabanok/progression-engine/pkg/repository"
	"github.com/tabanok/progression-engine/pkg/streak"
)

// Category is the metric a board ranks by.
type Category string

const (
	CategoryPoints       Category = "points"
	CategoryAchievements Category = "achievements"
	CategoryStreak       Category = "streak"
	CategoryActivities   Category = "activities"
)

// IsValid returns true if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPoints, CategoryAchievements, CategoryStreak, CategoryActivities:
		return true
	default:
		return false
	}
}

// Entry is one ranked user.
type Entry struct {
	UserID    string    `json:"user_id"`
	Score     int64     `json:"score"`
	Rank      int       `json:"rank"`
	ReachedAt time.Time `json:"reached_at"` // When the score was reached; earlier wins ties
}

const defaultPageSize = 500

// Aggregator computes rankings by paging through every stored profile.
//
// Ordering: score descending, then ReachedAt ascending, then user ID ascending,
// so ranks are unique and stable between runs. Users with a zero score are left out.
type Aggregator struct {
	store    repository.ProfileStore
	tracker  *streak.Tracker
	pageSize int
	clock    func() time.Time
	logger   *slog.Logger
}

// NewAggregator creates an aggregator over the store.
func NewAggregator(store repository.ProfileStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:    store,
		tracker:  streak.NewTracker(),
		pageSize: defaultPageSize,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithClock overrides the clock used for live streaks. Intended for tests.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// WithPageSize overrides the ListProfiles page size.
func (a *Aggregator) WithPageSize(n int) *Aggregator {
	if n > 0 {
		a.pageSize = n
	}
	return a
}

// Rank returns the full ranking for the category over the window.
func (a *Aggregator) Rank(ctx context.Context, category Category, w Window) ([]Entry, error) {
	if !category.IsValid() {
		return nil, errors.ErrValidationFailed("category", fmt.Sprintf("unknown leaderboard category %q", category))
	}

	now := a.clock()
	var entries []Entry
	after := ""
	scanned := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := a.store.ListProfiles(ctx, after, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		for _, p := range page {
			score, reachedAt := a.score(p, category, w, now)
			if score > 0 {
				entries = append(entries, Entry{UserID: p.UserID, Score: score, ReachedAt: reachedAt})
			}
		}

		scanned += len(page)
		after = page[len(page)-1].UserID
		if len(page) < a.pageSize {
			break
		}
	}

	slices.SortFunc(entries, compareEntries)
	for i := range entries {
		entries[i].Rank = i + 1
	}

	a.logger.DebugContext(ctx, "Leaderboard ranked",
		"category", string(category),
		"window", w.Name,
		"profiles", scanned,
		"entries", len(entries),
	)

	return entries, nil
}

// Top returns at most limit entries. A non-positive limit returns all.
func (a *Aggregator) Top(ctx context.Context, category Category, w Window, limit int) ([]Entry, error) {
	entries, err := a.Rank(ctx, category, w)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func compareEntries(a, b Entry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := a.ReachedAt.Compare(b.ReachedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

func (a *Aggregator) score(p *domain.Profile, category Category, w Window, now time.Time) (int64, time.Time) {
	switch category {
	case CategoryPoints:
		if w.IsAllTime() {
			reachedAt := p.UpdatedAt
			if p.PointsReachedAt != nil {
				reachedAt = *p.PointsReachedAt
			}
			return p.Points, reachedAt
		}
		if t, ok := w.tally(p); ok {
			return t.Points, t.PointsAt
		}
		return windowedLog(p, w, func(e domain.ActivityLogEntry) int64 { return e.PointsAwarded })

	case CategoryActivities:
		if t, ok := w.tally(p); ok {
			return t.Activities, t.ActivityAt
		}
		return windowedLog(p, w, func(domain.ActivityLogEntry) int64 { return 1 })

	case CategoryAchievements:
		var count int64
		var reachedAt time.Time
		for _, ap := range p.AchievementProgress {
			if ap.CompletedAt == nil || !w.Contains(*ap.CompletedAt) {
				continue
			}
			count++
			if ap.CompletedAt.After(reachedAt) {
				reachedAt = *ap.CompletedAt
			}
		}
		return count, reachedAt

	case CategoryStreak:
		if p.LastActivityDate == nil {
			return 0, time.Time{}
		}
		if !w.IsAllTime() && !w.Contains(*p.LastActivityDate) {
			return 0, time.Time{}
		}
		return int64(a.tracker.EffectiveStreak(p, now)), *p.LastActivityDate
	}

	return 0, time.Time{}
}

// windowedLog sums value over the activity log entries inside the window.
// ReachedAt is the last entry that contributed a non-zero value.
func windowedLog(p *domain.Profile, w Window, value func(domain.ActivityLogEntry) int64) (int64, time.Time) {
	var total int64
	var reachedAt time.Time
	for _, e := range p.ActivityLog {
		if !w.Contains(e.OccurredAt) {
			continue
		}
		v := value(e)
		if v == 0 {
			continue
		}
		total = domain.SaturatingAdd(total, v)
		if e.OccurredAt.After(reachedAt) {
			reachedAt = e.OccurredAt
		}
	}
	return total, reachedAt
}
