// Package progression computes level and experience transitions from point deltas.
//
// All functions are pure: they return an updated copy of the profile plus the
// domain events describing the transition, and never perform I/O.
package progression

import (
	"math"
	"time"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
)

// MaxLevelUpEvents caps the LevelUp events emitted by one award. A larger jump
// is reported as a single LevelUp spanning every level crossed.
const MaxLevelUpEvents = 100

// Engine applies point deltas to profiles using a level curve.
type Engine struct {
	curve LevelCurve
}

// NewEngine creates a progression engine for the given curve.
func NewEngine(curve LevelCurve) *Engine {
	return &Engine{curve: curve}
}

// Curve returns the engine's level curve.
func (e *Engine) Curve() LevelCurve {
	return e.curve
}

// ApplyPoints adds a non-negative delta and emits one LevelUp event per level
// crossed, up to MaxLevelUpEvents. A zero delta returns the profile unchanged
// and no events. A delta that would overflow the total is a validation error.
func (e *Engine) ApplyPoints(p *domain.Profile, delta int64, at time.Time) (*domain.Profile, []domain.Event, error) {
	if delta < 0 {
		return p, nil, errors.ErrValidationFailed("delta", "must be non-negative; use AdjustPoints for corrections")
	}
	if delta == 0 {
		return p, nil, nil
	}
	if p.Points > math.MaxInt64-delta {
		return p, nil, errors.ErrValidationFailed("delta", "would overflow the point total")
	}

	updated := p.Clone()
	oldLevel := updated.Level
	updated.Points += delta
	e.derive(updated)

	return updated, e.levelUps(updated, oldLevel, at), nil
}

// AdjustPoints applies an administrative correction of any sign. Points are
// clamped at zero and level may decrease. Emits PointsAdjusted, plus LevelUp
// events when the correction raises the level.
func (e *Engine) AdjustPoints(p *domain.Profile, delta int64, reason string, at time.Time) (*domain.Profile, []domain.Event) {
	if delta == 0 {
		return p, nil
	}

	updated := p.Clone()
	oldPoints := updated.Points
	oldLevel := updated.Level

	updated.Points = max(0, domain.SaturatingAdd(updated.Points, delta))
	e.derive(updated)

	events := []domain.Event{
		domain.NewEvent(domain.EventPointsAdjusted, updated.UserID, at, map[string]any{
			"requested_delta": delta,
			"applied_delta":   updated.Points - oldPoints,
			"points":          updated.Points,
			"from_level":      oldLevel,
			"level":           updated.Level,
			"reason":          reason,
		}),
	}

	return updated, append(events, e.levelUps(updated, oldLevel, at)...)
}

// Normalize recomputes level and experience from points in place.
// Used after loading a profile so a catalog curve change never leaves stale levels.
func (e *Engine) Normalize(p *domain.Profile) {
	e.derive(p)
}

func (e *Engine) derive(p *domain.Profile) {
	p.Level = e.curve.LevelFor(p.Points)
	p.Experience = p.Points - e.curve.Threshold(p.Level)
}

func (e *Engine) levelUps(p *domain.Profile, oldLevel int, at time.Time) []domain.Event {
	if p.Level <= oldLevel {
		return nil
	}

	if crossed := p.Level - oldLevel; crossed > MaxLevelUpEvents {
		return []domain.Event{domain.NewEvent(domain.EventLevelUp, p.UserID, at, map[string]any{
			"from_level":     oldLevel,
			"to_level":       p.Level,
			"levels_crossed": crossed,
			"threshold":      e.curve.Threshold(p.Level),
			"points":         p.Points,
		})}
	}

	events := make([]domain.Event, 0, p.Level-oldLevel)
	for level := oldLevel + 1; level <= p.Level; level++ {
		events = append(events, domain.NewEvent(domain.EventLevelUp, p.UserID, at, map[string]any{
			"from_level": level - 1,
			"to_level":   level,
			"threshold":  e.curve.Threshold(level),
			"points":     p.Points,
		}))
	}
	return events
}
