package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
	"github.com/tabanok/progression-engine/pkg/repository"
)

var testNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC) // Wednesday

func timePtr(t time.Time) *time.Time { return &t }

type profileOption func(p *domain.Profile)

func withPoints(points int64, reachedAt time.Time) profileOption {
	return func(p *domain.Profile) {
		p.Points = points
		p.PointsReachedAt = timePtr(reachedAt)
	}
}

// withActivity records an activity the way the coordinator does: appended to
// the bounded log and credited to the running tallies as of testNow.
func withActivity(id string, points int64, at time.Time, logLimit int, seasons ...*domain.Season) profileOption {
	return func(p *domain.Profile) {
		p.AppendActivity(domain.ActivityLogEntry{EventID: id, Category: "lesson_completed", PointsAwarded: points, OccurredAt: at}, logLimit)
		p.CreditActivity(points, at, testNow, seasons)
	}
}

func withStreak(current int, last time.Time) profileOption {
	return func(p *domain.Profile) {
		p.CurrentStreak = current
		p.LongestStreak = current
		p.LastActivityDate = timePtr(last)
	}
}

func withAchievement(id string, completedAt time.Time) profileOption {
	return func(p *domain.Profile) {
		p.AchievementProgress[id] = domain.AchievementProgress{CurrentValue: 1, TargetValue: 1, CompletedAt: timePtr(completedAt)}
	}
}

func seed(t *testing.T, store *repository.InMemoryProfileStore, userID string, opts ...profileOption) {
	t.Helper()
	p := domain.NewProfile(userID, testNow.Add(-30*24*time.Hour))
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, store.CreateProfile(context.Background(), p))
}

func newTestAggregator(store repository.ProfileStore) *Aggregator {
	return NewAggregator(store, nil).WithClock(func() time.Time { return testNow })
}

func TestAggregator_PointsAllTime_TieBreaks(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	early := testNow.Add(-2 * time.Hour)
	late := testNow.Add(-time.Hour)

	seed(t, store, "carla", withPoints(300, late))
	seed(t, store, "bruno", withPoints(500, late))
	seed(t, store, "ana", withPoints(300, early))
	seed(t, store, "dario", withPoints(300, early))
	seed(t, store, "zero") // zero score is excluded

	entries, err := newTestAggregator(store).Rank(context.Background(), CategoryPoints, AllTime())
	require.NoError(t, err)

	require.Len(t, entries, 4)
	assert.Equal(t, []string{"bruno", "ana", "dario", "carla"}, userIDs(entries))
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, int64(500), entries[0].Score)
}

func TestAggregator_PointsWeekly(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	lastWeek := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	tuesday := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	seed(t, store, "ana", withPoints(1000, tuesday),
		withActivity("a1", 900, lastWeek, 0),
		withActivity("a2", 100, tuesday, 0),
	)
	seed(t, store, "bruno", withPoints(150, monday),
		withActivity("b1", 150, monday, 0),
	)

	entries, err := newTestAggregator(store).Rank(context.Background(), CategoryPoints, Weekly(testNow))
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "bruno", entries[0].UserID)
	assert.Equal(t, int64(150), entries[0].Score)
	assert.Equal(t, "ana", entries[1].UserID)
	assert.Equal(t, int64(100), entries[1].Score)
	assert.Equal(t, tuesday, entries[1].ReachedAt)
}

func TestAggregator_Activities(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	today := testNow.Add(-time.Hour)

	seed(t, store, "ana",
		withActivity("a1", 20, today, 0),
		withActivity("a2", 0, today, 0), // unknown category, no points
	)
	seed(t, store, "bruno",
		withActivity("b1", 20, today.AddDate(0, 0, -3), 0),
	)

	agg := newTestAggregator(store)

	daily, err := agg.Rank(context.Background(), CategoryActivities, Daily(testNow))
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "ana", daily[0].UserID)
	assert.Equal(t, int64(2), daily[0].Score)

	all, err := agg.Rank(context.Background(), CategoryActivities, AllTime())
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "bruno"}, userIDs(all))
}

func TestAggregator_TalliesOutliveTheActivityLog(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	monday := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	opts := []profileOption{withPoints(250, monday)}
	for i := range 5 {
		opts = append(opts, withActivity(fmt.Sprintf("h%d", i), 50, monday.Add(time.Duration(i)*time.Hour), 2))
	}
	seed(t, store, "heavy", opts...)

	agg := newTestAggregator(store)

	weekly, err := agg.Rank(context.Background(), CategoryPoints, Weekly(testNow))
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, int64(250), weekly[0].Score)
	assert.Equal(t, monday.Add(4*time.Hour), weekly[0].ReachedAt)

	activities, err := agg.Rank(context.Background(), CategoryActivities, Weekly(testNow))
	require.NoError(t, err)
	assert.Equal(t, int64(5), activities[0].Score)

	// Custom windows only see what the log still holds.
	custom, err := agg.Rank(context.Background(), CategoryPoints, Custom("this-week", Weekly(testNow).Start, testNow))
	require.NoError(t, err)
	assert.Equal(t, int64(100), custom[0].Score)
}

func TestAggregator_SeasonWindow(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	season := &domain.Season{
		ID:        "betscnate",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
	before := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
	during := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	seed(t, store, "ana", withActivity("a1", 500, before, 0, season), withActivity("a2", 40, during, 0, season))
	seed(t, store, "bruno", withActivity("b1", 60, during, 0, season))
	seed(t, store, "carla", withActivity("c1", 900, before, 0, season))

	entries, err := newTestAggregator(store).Rank(context.Background(), CategoryPoints, Season(season))
	require.NoError(t, err)

	assert.Equal(t, []string{"bruno", "ana"}, userIDs(entries))
	assert.Equal(t, int64(60), entries[0].Score)
	assert.Equal(t, int64(40), entries[1].Score)
}

func TestAggregator_Achievements(t *testing.T) {
	store := repository.NewInMemoryProfileStore()

	seed(t, store, "ana", withAchievement("first_lesson", testNow.AddDate(0, 0, -40)), withAchievement("week_warrior", testNow.Add(-time.Hour)))
	seed(t, store, "bruno", withAchievement("first_lesson", testNow.Add(-2*time.Hour)))

	agg := newTestAggregator(store)

	all, err := agg.Rank(context.Background(), CategoryAchievements, AllTime())
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "bruno"}, userIDs(all))
	assert.Equal(t, int64(2), all[0].Score)

	monthly, err := agg.Rank(context.Background(), CategoryAchievements, Monthly(testNow))
	require.NoError(t, err)
	// Both have one completion this month; bruno reached it first.
	assert.Equal(t, []string{"bruno", "ana"}, userIDs(monthly))
}

func TestAggregator_StreakUsesLiveStreak(t *testing.T) {
	store := repository.NewInMemoryProfileStore()

	seed(t, store, "active", withStreak(5, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))
	seed(t, store, "lapsed", withStreak(30, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	entries, err := newTestAggregator(store).Rank(context.Background(), CategoryStreak, AllTime())
	require.NoError(t, err)

	require.Len(t, entries, 1, "a lapsed streak no longer counts")
	assert.Equal(t, "active", entries[0].UserID)
	assert.Equal(t, int64(5), entries[0].Score)
}

func TestAggregator_Paging(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	for i, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		seed(t, store, id, withPoints(int64(10*(i+1)), testNow))
	}

	entries, err := newTestAggregator(store).WithPageSize(2).Rank(context.Background(), CategoryPoints, AllTime())
	require.NoError(t, err)

	assert.Equal(t, []string{"u5", "u4", "u3", "u2", "u1"}, userIDs(entries))
}

func TestAggregator_Top(t *testing.T) {
	store := repository.NewInMemoryProfileStore()
	seed(t, store, "a", withPoints(30, testNow))
	seed(t, store, "b", withPoints(20, testNow))
	seed(t, store, "c", withPoints(10, testNow))

	entries, err := newTestAggregator(store).Top(context.Background(), CategoryPoints, AllTime(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, userIDs(entries))
}

func TestAggregator_InvalidCategory(t *testing.T) {
	_, err := newTestAggregator(repository.NewInMemoryProfileStore()).Rank(context.Background(), Category("karma"), AllTime())
	assert.True(t, errors.IsValidation(err))
}

func TestAggregator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAggregator(repository.NewInMemoryProfileStore()).Rank(ctx, CategoryPoints, AllTime())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name      string
		window    string
		wantStart time.Time
		inside    time.Time
		outside   time.Time
	}{
		{"daily", WindowDaily, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 13, 23, 59, 59, 0, time.UTC), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"weekly", WindowWeekly, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC), time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)},
		{"monthly", WindowMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WindowFor(tt.window, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.True(t, w.Contains(tt.inside))
			assert.False(t, w.Contains(tt.outside))
		})
	}

	all, err := WindowFor(WindowAllTime, testNow)
	require.NoError(t, err)
	assert.True(t, all.IsAllTime())
	assert.True(t, all.Contains(time.Time{}))

	_, err = WindowFor("yearly", testNow)
	assert.True(t, errors.IsValidation(err))
}

func userIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids
}
