package domain

import (
	"maps"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "github.com/tabanok/progression-engine/pkg/errors"
)

func TestMissionFrequency_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		frequency MissionFrequency
		want      bool
	}{
		{name: "daily is valid", frequency: FrequencyDaily, want: true},
		{name: "weekly is valid", frequency: FrequencyWeekly, want: true},
		{name: "monthly is valid", frequency: FrequencyMonthly, want: true},
		{name: "unique is valid", frequency: FrequencyUnique, want: true},
		{name: "invalid frequency", frequency: MissionFrequency("hourly"), want: false},
		{name: "empty frequency", frequency: MissionFrequency(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frequency.IsValid(); got != tt.want {
				t.Errorf("MissionFrequency.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTier_IsValid(t *testing.T) {
	assert.True(t, TierBronze.IsValid())
	assert.True(t, TierPlatinum.IsValid())
	assert.False(t, Tier("diamond").IsValid())
}

func TestTimeWindow(t *testing.T) {
	season := TimeWindow{
		Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, season.Contains(season.Start), "start is inclusive")
	assert.True(t, season.Contains(season.End), "end is inclusive")
	assert.False(t, season.Contains(season.End.Add(time.Second)))

	inner := TimeWindow{Start: season.Start.AddDate(0, 0, 5), End: season.End.AddDate(0, 0, -1)}
	assert.True(t, inner.Within(season))

	overflowing := TimeWindow{Start: season.Start, End: season.End.AddDate(0, 0, 1)}
	assert.False(t, overflowing.Within(season))
}

func TestActivityRule_PointsFor(t *testing.T) {
	rule := &ActivityRule{Category: "exercise_completed", BasePoints: 10, PointsPerValue: 2}
	assert.Equal(t, int64(10), rule.PointsFor(0))
	assert.Equal(t, int64(50), rule.PointsFor(20))
	assert.Equal(t, int64(math.MaxInt64), rule.PointsFor(math.MaxInt64/2))

	negative := &ActivityRule{Category: "penalty", BasePoints: -10, PointsPerValue: -3}
	assert.Equal(t, int64(math.MinInt64), negative.PointsFor(math.MaxInt64/2))
}

func TestCriteria_Advance(t *testing.T) {
	lesson := Signal{Category: "lesson_completed", Value: 80}
	comment := Signal{Category: "comment_posted", Value: 1}

	tests := []struct {
		name      string
		criteria  Criteria
		start     CriteriaProgress
		signal    Signal
		wantValue int64
		satisfied bool
	}{
		{
			name:      "count increments on matching category",
			criteria:  Criteria{Type: CriteriaCountThreshold, Category: "lesson_completed", Target: 3},
			start:     CriteriaProgress{Value: 1},
			signal:    lesson,
			wantValue: 2,
		},
		{
			name:      "count ignores other categories",
			criteria:  Criteria{Type: CriteriaCountThreshold, Category: "lesson_completed", Target: 3},
			start:     CriteriaProgress{Value: 1},
			signal:    comment,
			wantValue: 1,
		},
		{
			name:      "count sums values and caps at target",
			criteria:  Criteria{Type: CriteriaCountThreshold, SumValues: true, Target: 100},
			start:     CriteriaProgress{Value: 50},
			signal:    lesson,
			wantValue: 100,
			satisfied: true,
		},
		{
			name:      "summed values saturate instead of wrapping",
			criteria:  Criteria{Type: CriteriaCountThreshold, SumValues: true, Target: math.MaxInt64},
			start:     CriteriaProgress{Value: math.MaxInt64 - 5},
			signal:    Signal{Category: "lesson_completed", Value: 100},
			wantValue: math.MaxInt64,
			satisfied: true,
		},
		{
			name:      "score keeps best value",
			criteria:  Criteria{Type: CriteriaScoreThreshold, Category: "lesson_completed", Target: 90},
			start:     CriteriaProgress{Value: 85},
			signal:    lesson,
			wantValue: 85,
		},
		{
			name:      "score completes at target",
			criteria:  Criteria{Type: CriteriaScoreThreshold, Target: 80},
			start:     CriteriaProgress{},
			signal:    lesson,
			wantValue: 80,
			satisfied: true,
		},
		{
			name:      "boolean flag completes on first match",
			criteria:  Criteria{Type: CriteriaBooleanFlag, Category: "comment_posted"},
			signal:    comment,
			wantValue: 1,
			satisfied: true,
		},
		{
			name:      "boolean flag requires truthy metadata",
			criteria:  Criteria{Type: CriteriaBooleanFlag, MetadataKey: "perfect"},
			signal:    Signal{Category: "exercise_completed", Metadata: map[string]string{"perfect": "false"}},
			wantValue: 0,
		},
		{
			name:      "boolean flag with truthy metadata",
			criteria:  Criteria{Type: CriteriaBooleanFlag, MetadataKey: "perfect"},
			signal:    Signal{Category: "exercise_completed", Metadata: map[string]string{"perfect": "true"}},
			wantValue: 1,
			satisfied: true,
		},
		{
			name:      "streak tracks current streak",
			criteria:  Criteria{Type: CriteriaStreakThreshold, Target: 7},
			signal:    Signal{Category: "lesson_completed", Streak: 7},
			wantValue: 7,
			satisfied: true,
		},
		{
			name:      "unknown type leaves progress untouched",
			criteria:  Criteria{Type: CriteriaType("random"), Target: 1},
			start:     CriteriaProgress{Value: 0},
			signal:    lesson,
			wantValue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.criteria.Advance(tt.start, tt.signal)
			assert.Equal(t, tt.wantValue, got.Value)
			assert.Equal(t, tt.satisfied, tt.criteria.IsSatisfied(got))
		})
	}
}

func TestCriteria_AdvanceCompositeAll(t *testing.T) {
	c := Criteria{
		Type: CriteriaCompositeAll,
		Children: []Criteria{
			{Type: CriteriaCountThreshold, Category: "lesson_completed", Target: 2},
			{Type: CriteriaBooleanFlag, Category: "cultural_contribution"},
		},
	}
	assert.Equal(t, int64(2), c.TargetValue())

	p := c.Advance(CriteriaProgress{}, Signal{Category: "lesson_completed"})
	assert.Equal(t, []int64{1, 0}, p.Components)
	assert.Equal(t, int64(0), p.Value)

	p = c.Advance(p, Signal{Category: "lesson_completed"})
	assert.Equal(t, int64(1), p.Value)
	assert.False(t, c.IsSatisfied(p))

	next := c.Advance(p, Signal{Category: "cultural_contribution"})
	assert.Equal(t, []int64{2, 1}, next.Components)
	assert.True(t, c.IsSatisfied(next))

	// The input progress is never mutated
	assert.Equal(t, []int64{2, 0}, p.Components)
}

func TestProfile_Clone(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	p := NewProfile("user-1", now)
	p.AddBadge("first-steps")
	p.LastActivityDate = &now
	p.AchievementProgress["a1"] = AchievementProgress{CurrentValue: 1, TargetValue: 2, Components: []int64{1}}

	c := p.Clone()
	require.Equal(t, p, c)

	c.AddBadge("second")
	*c.LastActivityDate = now.AddDate(0, 0, 1)
	ap := c.AchievementProgress["a1"]
	ap.Components[0] = 9
	c.AchievementProgress["a1"] = ap

	assert.Equal(t, []string{"first-steps"}, p.BadgeIDs)
	assert.Equal(t, now, *p.LastActivityDate)
	assert.Equal(t, []int64{1}, p.AchievementProgress["a1"].Components)
}

func TestProfile_AddBadge(t *testing.T) {
	p := NewProfile("user-1", time.Now())

	assert.True(t, p.AddBadge("b1"))
	assert.False(t, p.AddBadge("b1"), "duplicate badge must be rejected")
	assert.False(t, p.AddBadge(""))
	assert.Equal(t, []string{"b1"}, p.BadgeIDs)
}

func TestProfile_AppendActivity(t *testing.T) {
	p := NewProfile("user-1", time.Now())

	for i := 0; i < 5; i++ {
		p.AppendActivity(ActivityLogEntry{EventID: string(rune('a' + i))}, 3)
	}

	require.Len(t, p.ActivityLog, 3)
	assert.Equal(t, "c", p.ActivityLog[0].EventID)
	assert.Equal(t, "e", p.ActivityLog[2].EventID)
}

func TestActivityEvent_Validate(t *testing.T) {
	valid := ActivityEvent{
		ID:         "evt-1",
		UserID:     "user-1",
		Category:   "lesson_completed",
		Value:      1,
		OccurredAt: time.Now(),
	}
	require.NoError(t, valid.Validate())

	atMax := valid
	atMax.Value = MaxActivityValue
	require.NoError(t, atMax.Validate())

	tests := []struct {
		name   string
		mutate func(e *ActivityEvent)
	}{
		{"missing id", func(e *ActivityEvent) { e.ID = "" }},
		{"missing user", func(e *ActivityEvent) { e.UserID = "  " }},
		{"missing category", func(e *ActivityEvent) { e.Category = "" }},
		{"negative value", func(e *ActivityEvent) { e.Value = -1 }},
		{"value above maximum", func(e *ActivityEvent) { e.Value = MaxActivityValue + 1 }},
		{"value near int64 limit", func(e *ActivityEvent) { e.Value = math.MaxInt64 - 10 }},
		{"zero timestamp", func(e *ActivityEvent) { e.OccurredAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			assert.True(t, customerrors.IsValidation(err))
		})
	}
}

func TestPeriodKey(t *testing.T) {
	at := time.Date(2024, 3, 14, 23, 30, 0, 0, time.FixedZone("COT", -5*3600))

	assert.Equal(t, "all", PeriodKey(PeriodAllTime, at))
	assert.Equal(t, "day:2024-03-15", PeriodKey(PeriodDay, at))
	assert.Equal(t, "week:2024-03-11", PeriodKey(PeriodWeek, at))
	assert.Equal(t, "month:2024-03", PeriodKey(PeriodMonth, at))
}

func TestProfile_CreditActivity(t *testing.T) {
	season := &Season{
		ID:        "betscnate",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
	seasons := []*Season{season}
	friday := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	lastWeek := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	february := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)

	p := NewProfile("user-1", february)
	p.CreditActivity(30, february, february, seasons)
	assert.Empty(t, p.SeasonTallies)
	assert.Equal(t, int64(30), p.PeriodTallies["month:2024-02"].Points)

	p.CreditActivity(40, lastWeek, lastWeek, seasons)
	p.CreditActivity(50, friday, friday, seasons)
	p.CreditActivity(0, friday.Add(time.Hour), friday.Add(time.Hour), seasons)

	t.Run("stale periods are pruned", func(t *testing.T) {
		assert.ElementsMatch(t,
			[]string{"all", "day:2024-03-15", "week:2024-03-11", "month:2024-03"},
			slices.Collect(maps.Keys(p.PeriodTallies)))
	})

	t.Run("current periods", func(t *testing.T) {
		assert.Equal(t, Tally{Points: 120, Activities: 4, PointsAt: friday, ActivityAt: friday.Add(time.Hour)}, p.PeriodTallies["all"])
		assert.Equal(t, Tally{Points: 90, Activities: 3, PointsAt: friday, ActivityAt: friday.Add(time.Hour)}, p.PeriodTallies["month:2024-03"])
		assert.Equal(t, Tally{Points: 50, Activities: 2, PointsAt: friday, ActivityAt: friday.Add(time.Hour)}, p.PeriodTallies["week:2024-03-11"])
	})

	t.Run("season", func(t *testing.T) {
		assert.Equal(t, Tally{Points: 90, Activities: 3, PointsAt: friday, ActivityAt: friday.Add(time.Hour)}, p.SeasonTallies["betscnate"])
	})

	t.Run("late activity only reaches periods still current", func(t *testing.T) {
		p.CreditActivity(25, lastWeek, friday.Add(2*time.Hour), seasons)

		assert.Equal(t, int64(145), p.PeriodTallies["all"].Points)
		assert.Equal(t, int64(115), p.PeriodTallies["month:2024-03"].Points)
		assert.Equal(t, int64(50), p.PeriodTallies["week:2024-03-11"].Points)
		assert.NotContains(t, p.PeriodTallies, "week:2024-03-04")
		assert.Equal(t, int64(115), p.SeasonTallies["betscnate"].Points)
		assert.Equal(t, friday, p.SeasonTallies["betscnate"].PointsAt)
	})

	t.Run("clone is independent", func(t *testing.T) {
		c := p.Clone()
		c.CreditActivity(10, friday, friday, seasons)
		assert.Equal(t, int64(115), p.SeasonTallies["betscnate"].Points)
		assert.Equal(t, int64(125), c.SeasonTallies["betscnate"].Points)
	})
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 3, 11, 8, 0, 0, 0, time.FixedZone("COT", -5*3600))
	e := NewEvent(EventLevelUp, "user-1", at, nil)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, time.UTC, e.OccurredAt.Location())
	assert.NotNil(t, e.Data)
}
