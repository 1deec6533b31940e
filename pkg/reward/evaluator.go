// Package reward decides which achievements, missions, special events and
// badges an activity newly satisfies.
//
// Evaluation is pure and replay safe: completed entries are skipped, so the
// same activity evaluated twice never yields a second completion.
package reward

import (
	"slices"
	"time"

	"github.com/tabanok/progression-engine/pkg/catalog"
	"github.com/tabanok/progression-engine/pkg/common"
	"github.com/tabanok/progression-engine/pkg/domain"
)

// Kind identifies what a completion refers to.
type Kind string

const (
	KindAchievement  Kind = "achievement"
	KindMission      Kind = "mission"
	KindSpecialEvent Kind = "special_event"
)

// Completion is a goal newly satisfied by an activity. The coordinator turns
// RewardPoints into points and BadgeID into a badge grant.
type Completion struct {
	Kind         Kind   `json:"kind"`
	ID           string `json:"id"`
	Value        int64  `json:"value"`
	Target       int64  `json:"target"`
	RewardPoints int64  `json:"reward_points"`
	BadgeID      string `json:"badge_id,omitempty"`
}

// Result is the outcome of evaluating one activity.
type Result struct {
	Profile     *domain.Profile
	Completions []Completion
	Events      []domain.Event
}

// Evaluator evaluates catalog goals against activities.
type Evaluator struct{}

// NewEvaluator creates a reward evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate advances progress for the activity and returns the completions in
// catalog order: achievements, then missions, then special events.
// The profile's CurrentStreak must already reflect this activity.
func (e *Evaluator) Evaluate(p *domain.Profile, ev domain.ActivityEvent, cat catalog.RuleCatalog, now time.Time) Result {
	updated := p.Clone()
	signal := ev.Signal(updated.CurrentStreak)

	res := Result{Profile: updated}
	e.evaluateAchievements(&res, signal, cat, now)
	e.evaluateMissions(&res, signal, cat, now)
	e.evaluateSpecialEvents(&res, signal, cat, now)

	return res
}

func (e *Evaluator) evaluateAchievements(res *Result, s domain.Signal, cat catalog.RuleCatalog, now time.Time) {
	p := res.Profile

	for _, a := range cat.GetAllAchievements() {
		current, seen := p.AchievementProgress[a.ID]
		if current.IsCompleted() {
			continue
		}

		next := a.Criteria.Advance(domain.CriteriaProgress{Value: current.CurrentValue, Components: current.Components}, s)
		if seen && next.Value == current.CurrentValue && slices.Equal(next.Components, current.Components) {
			continue
		}
		if !seen && next.Value == 0 && !hasProgress(next.Components) {
			continue
		}

		progress := domain.AchievementProgress{
			CurrentValue: next.Value,
			TargetValue:  a.Criteria.TargetValue(),
			Components:   next.Components,
		}

		if a.Criteria.IsSatisfied(next) {
			completedAt := now
			progress.CompletedAt = &completedAt

			res.Completions = append(res.Completions, Completion{
				Kind:         KindAchievement,
				ID:           a.ID,
				Value:        progress.CurrentValue,
				Target:       progress.TargetValue,
				RewardPoints: a.RewardPoints,
				BadgeID:      a.BadgeID,
			})
			res.Events = append(res.Events, domain.NewEvent(domain.EventAchievementCompleted, p.UserID, now, map[string]any{
				"achievement_id": a.ID,
				"name":           a.Name,
				"tier":           string(a.Tier),
				"reward_points":  a.RewardPoints,
				"badge_id":       a.BadgeID,
			}))
		}

		p.AchievementProgress[a.ID] = progress
	}
}

func (e *Evaluator) evaluateMissions(res *Result, s domain.Signal, cat catalog.RuleCatalog, now time.Time) {
	p := res.Profile

	for _, m := range cat.GetAllMissions() {
		if m.IsLimited() && !m.Window.Contains(now) {
			continue
		}

		start, end := PeriodBounds(m.Frequency, now)
		current, seen := p.MissionProgress[m.ID]
		if seen && m.Frequency != domain.FrequencyUnique && !inPeriod(current, now) {
			// Rollover: a new period starts from zero.
			current = domain.MissionProgress{}
			seen = false
		}
		if current.CompletedAt != nil {
			continue
		}

		next := m.Criteria.Advance(domain.CriteriaProgress{Value: current.Progress, Components: current.Components}, s)
		if next.Value == current.Progress && slices.Equal(next.Components, current.Components) {
			continue
		}
		if !seen && next.Value == 0 && !hasProgress(next.Components) {
			continue
		}

		progress := domain.MissionProgress{
			Progress:    next.Value,
			Target:      m.Criteria.TargetValue(),
			Components:  next.Components,
			PeriodStart: start,
			PeriodEnd:   end,
		}

		if m.Criteria.IsSatisfied(next) {
			completedAt := now
			progress.CompletedAt = &completedAt

			res.Completions = append(res.Completions, Completion{
				Kind:         KindMission,
				ID:           m.ID,
				Value:        progress.Progress,
				Target:       progress.Target,
				RewardPoints: m.RewardPoints,
				BadgeID:      m.BadgeID,
			})
			res.Events = append(res.Events, domain.NewEvent(domain.EventMissionCompleted, p.UserID, now, map[string]any{
				"mission_id":    m.ID,
				"name":          m.Name,
				"frequency":     string(m.Frequency),
				"period_start":  start,
				"reward_points": m.RewardPoints,
				"badge_id":      m.BadgeID,
			}))
		}

		p.MissionProgress[m.ID] = progress
	}
}

func (e *Evaluator) evaluateSpecialEvents(res *Result, s domain.Signal, cat catalog.RuleCatalog, now time.Time) {
	p := res.Profile
	if len(p.EventParticipation) == 0 {
		return
	}

	for _, se := range cat.GetAllSpecialEvents() {
		part, joined := p.EventParticipation[se.ID]
		if !joined || part.CompletedAt != nil || !se.IsActive(now) {
			continue
		}

		next := se.Criteria.Advance(domain.CriteriaProgress{Value: part.Progress, Components: part.Components}, s)
		if next.Value == part.Progress && slices.Equal(next.Components, part.Components) {
			continue
		}

		part.Progress = next.Value
		part.Components = next.Components
		part.Target = se.Criteria.TargetValue()

		if se.Criteria.IsSatisfied(next) {
			completedAt := now
			part.CompletedAt = &completedAt

			res.Completions = append(res.Completions, Completion{
				Kind:         KindSpecialEvent,
				ID:           se.ID,
				Value:        part.Progress,
				Target:       part.Target,
				RewardPoints: se.RewardPoints,
				BadgeID:      se.BadgeID,
			})
			res.Events = append(res.Events, domain.NewEvent(domain.EventEventCompleted, p.UserID, now, map[string]any{
				"event_id":      se.ID,
				"name":          se.Name,
				"season_id":     se.SeasonID,
				"reward_points": se.RewardPoints,
				"badge_id":      se.BadgeID,
			}))
		}

		p.EventParticipation[se.ID] = part
	}
}

// PeriodBounds returns the [start, end) period containing now for a mission
// frequency. Unique missions have zero bounds and never roll over.
func PeriodBounds(freq domain.MissionFrequency, now time.Time) (time.Time, time.Time) {
	switch freq {
	case domain.FrequencyDaily:
		return common.TruncateToDateUTC(now), common.EndOfDateUTC(now)
	case domain.FrequencyWeekly:
		start := common.StartOfWeekUTC(now)
		return start, start.AddDate(0, 0, 7)
	case domain.FrequencyMonthly:
		start := common.StartOfMonthUTC(now)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func inPeriod(mp domain.MissionProgress, now time.Time) bool {
	if mp.PeriodStart.IsZero() && mp.PeriodEnd.IsZero() {
		return false
	}
	return !now.Before(mp.PeriodStart) && now.Before(mp.PeriodEnd)
}

func hasProgress(components []int64) bool {
	for _, c := range components {
		if c > 0 {
			return true
		}
	}
	return false
}
