// Package coordinator applies activities and administrative changes to
// profiles. Every call runs as one transaction against the profile store:
// either all of its effects are persisted or none are, and domain events are
// published only after a successful commit.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabanok/progression-engine/pkg/catalog"
	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
	"github.com/tabanok/progression-engine/pkg/leaderboard"
	"github.com/tabanok/progression-engine/pkg/progression"
	"github.com/tabanok/progression-engine/pkg/publisher"
	"github.com/tabanok/progression-engine/pkg/repository"
	"github.com/tabanok/progression-engine/pkg/reward"
	"github.com/tabanok/progression-engine/pkg/streak"
)

// DefaultMaxConflictRetries is the number of retries after a concurrency conflict.
const DefaultMaxConflictRetries = 3

// Options tunes the coordinator.
type Options struct {
	MaxConflictRetries int              // Retries of the whole call after a ConcurrencyConflict
	ActivityLogLimit   int              // Activity log entries kept per profile
	Clock              func() time.Time // Defaults to time.Now
}

// Ranker ranks profiles for season settlement. Implemented by leaderboard.Aggregator.
type Ranker interface {
	Rank(ctx context.Context, category leaderboard.Category, w leaderboard.Window) ([]leaderboard.Entry, error)
}

// Outcome describes what recording one activity did.
type Outcome struct {
	Profile     *domain.Profile
	Events      []domain.Event
	Completions []reward.Completion

	// Duplicate is set when the activity ID was already applied; nothing changed.
	Duplicate bool

	// UnknownCategory is set when no activity rule matched; the activity was logged with zero reward.
	UnknownCategory bool
}

// AwardCoordinator is the single writer of progression profiles.
type AwardCoordinator struct {
	store     repository.ProfileStore
	catalog   catalog.RuleCatalog
	publisher publisher.EventPublisher
	ranker    Ranker
	tracker   *streak.Tracker
	evaluator *reward.Evaluator
	opts      Options
	logger    *slog.Logger
}

// NewAwardCoordinator creates a coordinator. ranker may be nil when season
// settlement is not used.
func NewAwardCoordinator(
	store repository.ProfileStore,
	cat catalog.RuleCatalog,
	pub publisher.EventPublisher,
	ranker Ranker,
	opts Options,
	logger *slog.Logger,
) *AwardCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if opts.ActivityLogLimit <= 0 {
		opts.ActivityLogLimit = domain.DefaultActivityLogLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &AwardCoordinator{
		store:     store,
		catalog:   cat,
		publisher: pub,
		ranker:    ranker,
		tracker:   streak.NewTracker(),
		evaluator: reward.NewEvaluator(),
		opts:      opts,
		logger:    logger,
	}
}

// mutation computes the new profile inside a transaction. Returning a nil
// profile commits without writing the profile row.
type mutation func(ctx context.Context, tx repository.TxProfileStore, engine *progression.Engine, p *domain.Profile, now time.Time) (*domain.Profile, []domain.Event, error)

// RecordActivity applies an activity and returns the resulting profile.
func (c *AwardCoordinator) RecordActivity(ctx context.Context, ev domain.ActivityEvent) (*domain.Profile, error) {
	out, err := c.Record(ctx, ev)
	if err != nil {
		return nil, err
	}
	return out.Profile, nil
}

// Record applies an activity: streak, goal progress, points, badges and the
// activity log, in that order. Replaying an activity ID is a no-op that
// returns the current profile with Duplicate set.
func (c *AwardCoordinator) Record(ctx context.Context, ev domain.ActivityEvent) (*Outcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var out *Outcome
	p, events, err := c.run(ctx, ev.UserID, true, func(ctx context.Context, tx repository.TxProfileStore, engine *progression.Engine, p *domain.Profile, now time.Time) (*domain.Profile, []domain.Event, error) {
		out = &Outcome{}

		processed, err := tx.IsEventProcessed(ctx, ev.UserID, ev.ID)
		if err != nil {
			return nil, nil, err
		}
		if processed {
			out.Duplicate = true
			return nil, nil, nil
		}

		updated, events, err := c.applyActivity(ctx, ev, engine, p, now, out)
		if err != nil {
			return nil, nil, err
		}

		if err := tx.MarkEventProcessed(ctx, ev.UserID, ev.ID); err != nil {
			return nil, nil, err
		}
		return updated, events, nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to record activity",
			"user_id", ev.UserID,
			"event_id", ev.ID,
			"category", ev.Category,
			"error", err,
		)
		return nil, err
	}

	out.Profile = p
	out.Events = events

	if out.Duplicate {
		c.logger.InfoContext(ctx, "Activity already processed", "user_id", ev.UserID, "event_id", ev.ID)
	} else {
		c.logger.InfoContext(ctx, "Activity recorded",
			"user_id", ev.UserID,
			"event_id", ev.ID,
			"category", ev.Category,
			"points", p.Points,
			"level", p.Level,
			"streak", p.CurrentStreak,
			"completions", len(out.Completions),
			"events", len(events),
		)
	}

	return out, nil
}

func (c *AwardCoordinator) applyActivity(ctx context.Context, ev domain.ActivityEvent, engine *progression.Engine, p *domain.Profile, now time.Time, out *Outcome) (*domain.Profile, []domain.Event, error) {
	occurredAt := ev.OccurredAt.UTC()
	if occurredAt.After(now) {
		occurredAt = now
	}
	entry := domain.ActivityLogEntry{
		EventID:    ev.ID,
		Category:   ev.Category,
		Value:      ev.Value,
		OccurredAt: occurredAt,
	}

	rule := c.catalog.GetActivityRule(ev.Category)
	if rule == nil {
		out.UnknownCategory = true
		c.logger.WarnContext(ctx, "Unknown activity category, recorded without reward",
			"user_id", ev.UserID,
			"event_id", ev.ID,
			"category", ev.Category,
			"error", errors.ErrUnknownCatalogReference("activity_category", ev.Category),
		)

		updated := p.Clone()
		updated.AppendActivity(entry, c.opts.ActivityLogLimit)
		updated.CreditActivity(0, occurredAt, now, c.catalog.GetAllSeasons())
		return updated, nil, nil
	}

	updated, events := c.tracker.RecordActivity(p, ev.OccurredAt, now)

	res := c.evaluator.Evaluate(updated, ev, c.catalog, now)
	updated = res.Profile
	out.Completions = res.Completions

	updated, events, err := award(engine, updated, events, rule.PointsFor(ev.Value), "activity", ev.ID, now)
	if err != nil {
		return nil, nil, err
	}

	// res.Events holds one completion event per entry of res.Completions, in the same order.
	for i, comp := range res.Completions {
		events = append(events, res.Events[i])

		updated, events, err = award(engine, updated, events, comp.RewardPoints, string(comp.Kind), comp.ID, now)
		if err != nil {
			return nil, nil, err
		}
		if comp.BadgeID != "" {
			events = c.grantBadge(ctx, updated, events, comp.BadgeID, string(comp.Kind), now)
		}
	}

	updated, badgeEvents := c.evaluator.EvaluateBadges(updated, c.catalog, now)
	events = append(events, badgeEvents...)

	entry.PointsAwarded = updated.Points - p.Points
	updated.AppendActivity(entry, c.opts.ActivityLogLimit)
	updated.CreditActivity(entry.PointsAwarded, occurredAt, now, c.catalog.GetAllSeasons())
	if entry.PointsAwarded > 0 {
		updated.PointsReachedAt = &now
	}

	return updated, events, nil
}

// EnsureProfile creates a zeroed profile for a new user. Existing profiles are returned unchanged.
func (c *AwardCoordinator) EnsureProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.ErrValidationFailed("user_id", "cannot be empty")
	}

	if err := c.store.CreateProfile(ctx, domain.NewProfile(userID, c.now())); err != nil {
		return nil, err
	}
	return c.GetProfile(ctx, userID)
}

// GetProfile returns the user's profile with level and experience derived from the current curve.
func (c *AwardCoordinator) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.ErrProfileNotFound(userID)
	}

	c.engine().Normalize(p)
	return p, nil
}

// AdjustPoints applies an administrative correction of any sign. Points never go below zero.
func (c *AwardCoordinator) AdjustPoints(ctx context.Context, userID string, delta int64, reason string) (*domain.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.ErrValidationFailed("user_id", "cannot be empty")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errors.ErrValidationFailed("reason", "cannot be empty")
	}

	p, _, err := c.run(ctx, userID, false, func(_ context.Context, _ repository.TxProfileStore, engine *progression.Engine, p *domain.Profile, now time.Time) (*domain.Profile, []domain.Event, error) {
		updated, events := engine.AdjustPoints(p, delta, reason, now)
		if updated == p {
			return nil, nil, nil
		}
		if updated.Points != p.Points {
			updated.PointsReachedAt = &now
		}

		updated, badgeEvents := c.evaluator.EvaluateBadges(updated, c.catalog, now)
		return updated, append(events, badgeEvents...), nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Points adjusted",
		"user_id", userID,
		"delta", delta,
		"reason", reason,
		"points", p.Points,
		"level", p.Level,
	)
	return p, nil
}

// JoinEvent enrolls the user in an active special event.
func (c *AwardCoordinator) JoinEvent(ctx context.Context, userID, eventID string) (*domain.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.ErrValidationFailed("user_id", "cannot be empty")
	}

	se := c.catalog.GetSpecialEvent(eventID)
	if se == nil {
		return nil, errors.ErrCatalogMissing("special_event", eventID)
	}

	p, _, err := c.run(ctx, userID, true, func(_ context.Context, _ repository.TxProfileStore, _ *progression.Engine, p *domain.Profile, now time.Time) (*domain.Profile, []domain.Event, error) {
		if _, ok := p.EventParticipation[eventID]; ok {
			return nil, nil, errors.ErrAlreadyParticipating(eventID)
		}
		if err := eligible(p, se, now); err != nil {
			return nil, nil, err
		}

		updated := p.Clone()
		updated.EventParticipation[eventID] = domain.EventParticipation{
			JoinedAt: now,
			Target:   se.Criteria.TargetValue(),
		}

		joined := domain.NewEvent(domain.EventEventJoined, userID, now, map[string]any{
			"event_id":  se.ID,
			"name":      se.Name,
			"season_id": se.SeasonID,
			"target":    se.Criteria.TargetValue(),
			"ends_at":   se.EndDate,
		})
		return updated, []domain.Event{joined}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Joined special event", "user_id", userID, "event_id", eventID)
	return p, nil
}

func eligible(p *domain.Profile, se *domain.SpecialEvent, now time.Time) error {
	if !se.IsActive(now) {
		return errors.ErrNotEligible(se.ID, "event is not active")
	}
	if se.Requirements.MinLevel > 0 && p.Level < se.Requirements.MinLevel {
		return errors.ErrNotEligible(se.ID, fmt.Sprintf("requires level %d", se.Requirements.MinLevel))
	}
	for _, id := range se.Requirements.PrerequisiteAchievements {
		if !p.HasCompletedAchievement(id) {
			return errors.ErrNotEligible(se.ID, fmt.Sprintf("requires achievement %s", id))
		}
	}
	return nil
}

// run executes fn in a transaction on the user's locked profile, retrying the
// whole unit on concurrency conflicts, and publishes the events after commit.
func (c *AwardCoordinator) run(ctx context.Context, userID string, create bool, fn mutation) (*domain.Profile, []domain.Event, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxConflictRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				break
			}
			c.logger.WarnContext(ctx, "Concurrency conflict, retrying",
				"user_id", userID,
				"attempt", attempt,
				"error", lastErr,
			)
		}

		p, events, err := c.attempt(ctx, userID, create, fn)
		if err == nil {
			c.publish(ctx, events)
			return p, events, nil
		}
		if !errors.IsConcurrencyConflict(err) {
			return nil, nil, err
		}
		lastErr = err
	}

	return nil, nil, lastErr
}

func (c *AwardCoordinator) attempt(ctx context.Context, userID string, create bool, fn mutation) (*domain.Profile, []domain.Event, error) {
	now := c.now()

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.WarnContext(ctx, "Rollback failed", "user_id", userID, "error", rbErr)
		}
	}()

	p, err := lockProfile(ctx, tx, userID, create, now)
	if err != nil {
		return nil, nil, err
	}

	engine := c.engine()
	engine.Normalize(p)

	updated, events, err := fn(ctx, tx, engine, p, now)
	if err != nil {
		return nil, nil, err
	}

	if updated != nil {
		if err := tx.SaveProfile(ctx, updated); err != nil {
			return nil, nil, err
		}
		p = updated
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true

	return p, events, nil
}

// lockProfile reads the profile FOR UPDATE, creating it first when allowed.
func lockProfile(ctx context.Context, tx repository.TxProfileStore, userID string, create bool, now time.Time) (*domain.Profile, error) {
	p, err := tx.GetProfileForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	if !create {
		return nil, errors.ErrProfileNotFound(userID)
	}

	if err := tx.CreateProfile(ctx, domain.NewProfile(userID, now)); err != nil {
		return nil, err
	}

	p, err = tx.GetProfileForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.ErrPersistenceFailure("create profile", fmt.Errorf("profile %s missing after insert", userID))
	}
	return p, nil
}

// award applies bonus points and appends PointsAwarded followed by any LevelUp events.
func award(engine *progression.Engine, p *domain.Profile, events []domain.Event, points int64, source, sourceID string, now time.Time) (*domain.Profile, []domain.Event, error) {
	if points == 0 {
		return p, events, nil
	}

	updated, levelUps, err := engine.ApplyPoints(p, points, now)
	if err != nil {
		return nil, nil, err
	}

	events = append(events, domain.NewEvent(domain.EventPointsAwarded, p.UserID, now, map[string]any{
		"points":    points,
		"total":     updated.Points,
		"level":     updated.Level,
		"source":    source,
		"source_id": sourceID,
	}))
	return updated, append(events, levelUps...), nil
}

// grantBadge adds a catalog badge to p in place. Unknown badge IDs are logged and skipped.
func (c *AwardCoordinator) grantBadge(ctx context.Context, p *domain.Profile, events []domain.Event, badgeID, source string, now time.Time) []domain.Event {
	b := c.catalog.GetBadge(badgeID)
	if b == nil {
		c.logger.WarnContext(ctx, "Badge not in catalog, skipped",
			"user_id", p.UserID,
			"badge_id", badgeID,
			"source", source,
		)
		return events
	}

	if ev, ok := reward.GrantBadge(p, b, source, now); ok {
		events = append(events, ev)
	}
	return events
}

func (c *AwardCoordinator) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 || c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, events...); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish events",
			"user_id", events[0].UserID,
			"events", len(events),
			"error", err,
		)
	}
}

// engine builds a progression engine from the current catalog so reloads take effect.
func (c *AwardCoordinator) engine() *progression.Engine {
	return progression.NewEngine(progression.NewLevelCurve(c.catalog.LevelRule()))
}

func (c *AwardCoordinator) now() time.Time {
	return c.opts.Clock().UTC()
}
