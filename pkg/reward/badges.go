package reward

import (
	"time"

	"github.com/tabanok/progression-engine/pkg/catalog"
	"github.com/tabanok/progression-engine/pkg/domain"
)

// EvaluateBadges grants every badge whose requirement the profile now meets.
// Badges with an empty requirement are only granted through achievements,
// missions, events or season rewards and are skipped here.
func (e *Evaluator) EvaluateBadges(p *domain.Profile, cat catalog.RuleCatalog, now time.Time) (*domain.Profile, []domain.Event) {
	var (
		updated *domain.Profile
		events  []domain.Event
	)

	for _, b := range cat.GetAllBadges() {
		if b.Requirement.IsZero() || p.HasBadge(b.ID) || !RequirementMet(p, b.Requirement) {
			continue
		}

		if updated == nil {
			updated = p.Clone()
		}
		if ev, ok := GrantBadge(updated, b, "requirement", now); ok {
			events = append(events, ev)
		}
	}

	if updated == nil {
		return p, nil
	}
	return updated, events
}

// RequirementMet reports whether p satisfies every condition of req.
func RequirementMet(p *domain.Profile, req domain.BadgeRequirement) bool {
	if req.MinPoints > 0 && p.Points < req.MinPoints {
		return false
	}
	if req.MinLevel > 0 && p.Level < req.MinLevel {
		return false
	}
	if req.MinStreak > 0 && p.LongestStreak < req.MinStreak {
		return false
	}
	for _, id := range req.RequiredAchievements {
		if !p.HasCompletedAchievement(id) {
			return false
		}
	}
	return true
}

// GrantBadge adds the badge to p in place and returns the BadgeGranted event.
// Returns false when the badge is already held.
func GrantBadge(p *domain.Profile, b *domain.Badge, source string, at time.Time) (domain.Event, bool) {
	if !p.AddBadge(b.ID) {
		return domain.Event{}, false
	}

	return domain.NewEvent(domain.EventBadgeGranted, p.UserID, at, map[string]any{
		"badge_id": b.ID,
		"name":     b.Name,
		"tier":     string(b.Tier),
		"benefits": b.Benefits,
		"source":   source,
	}), true
}
