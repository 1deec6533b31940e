package coordinator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
	"github.com/tabanok/progression-engine/pkg/leaderboard"
	"github.com/tabanok/progression-engine/pkg/progression"
	"github.com/tabanok/progression-engine/pkg/repository"
)

// SeasonGrant is one reward granted by a settlement run.
type SeasonGrant struct {
	UserID  string `json:"user_id"`
	Rank    int    `json:"rank"`
	Points  int64  `json:"points"`
	BadgeID string `json:"badge_id,omitempty"`
}

// Settlement summarizes a SettleSeason run.
type Settlement struct {
	SeasonID string        `json:"season_id"`
	Ranked   int           `json:"ranked"`  // Users with points in the season window
	Granted  []SeasonGrant `json:"granted"` // Rewards granted by this run
	Skipped  int           `json:"skipped"` // Users already rewarded by an earlier run
}

// SettleSeason ranks users by points earned during an ended season and grants
// each user the best reward their rank qualifies for. A reward with Rank N goes
// to positions 1..N not covered by a smaller N.
//
// Each grant is its own transaction and is recorded on the profile, so a run
// that fails midway can be repeated without rewarding anyone twice.
func (c *AwardCoordinator) SettleSeason(ctx context.Context, seasonID string) (*Settlement, error) {
	season := c.catalog.GetSeason(seasonID)
	if season == nil {
		return nil, errors.ErrCatalogMissing("season", seasonID)
	}
	if !c.now().After(season.EndDate) {
		return nil, errors.ErrNotEligible(seasonID, "season has not ended")
	}
	if c.ranker == nil {
		return nil, errors.ErrConfigInvalid("season settlement requires a leaderboard ranker")
	}

	entries, err := c.ranker.Rank(ctx, leaderboard.CategoryPoints, leaderboard.Season(season))
	if err != nil {
		return nil, fmt.Errorf("failed to rank season %s: %w", seasonID, err)
	}

	rewards := slices.SortedFunc(slices.Values(season.Rewards), func(a, b domain.SeasonReward) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	result := &Settlement{SeasonID: seasonID, Ranked: len(entries)}

	for _, entry := range entries {
		sr, ok := rewardFor(rewards, entry.Rank)
		if !ok {
			break
		}

		granted, err := c.grantSeasonReward(ctx, season, entry, sr)
		if err != nil {
			return result, fmt.Errorf("failed to settle season %s for user %s: %w", seasonID, entry.UserID, err)
		}
		if !granted {
			result.Skipped++
			continue
		}

		result.Granted = append(result.Granted, SeasonGrant{
			UserID:  entry.UserID,
			Rank:    entry.Rank,
			Points:  sr.Points,
			BadgeID: sr.BadgeID,
		})
	}

	c.logger.InfoContext(ctx, "Season settled",
		"season_id", seasonID,
		"ranked", result.Ranked,
		"granted", len(result.Granted),
		"skipped", result.Skipped,
	)
	return result, nil
}

// rewardFor returns the reward with the smallest Rank >= position.
// rewards must be sorted by Rank ascending.
func rewardFor(rewards []domain.SeasonReward, position int) (domain.SeasonReward, bool) {
	for _, r := range rewards {
		if position <= r.Rank {
			return r, true
		}
	}
	return domain.SeasonReward{}, false
}

func (c *AwardCoordinator) grantSeasonReward(ctx context.Context, season *domain.Season, entry leaderboard.Entry, sr domain.SeasonReward) (bool, error) {
	granted := false

	_, _, err := c.run(ctx, entry.UserID, false, func(ctx context.Context, _ repository.TxProfileStore, engine *progression.Engine, p *domain.Profile, now time.Time) (*domain.Profile, []domain.Event, error) {
		granted = false
		if _, ok := p.SeasonRewards[season.ID]; ok {
			return nil, nil, nil
		}

		events := []domain.Event{
			domain.NewEvent(domain.EventSeasonRewardGranted, p.UserID, now, map[string]any{
				"season_id":   season.ID,
				"season_name": season.Name,
				"rank":        entry.Rank,
				"score":       entry.Score,
				"points":      sr.Points,
				"badge_id":    sr.BadgeID,
			}),
		}

		updated, events, err := award(engine, p.Clone(), events, sr.Points, "season", season.ID, now)
		if err != nil {
			return nil, nil, err
		}
		if sr.BadgeID != "" {
			events = c.grantBadge(ctx, updated, events, sr.BadgeID, "season", now)
		}
		if updated.Points != p.Points {
			updated.PointsReachedAt = &now
		}

		updated.SeasonRewards[season.ID] = domain.SeasonRewardGrant{
			Rank:      entry.Rank,
			Points:    sr.Points,
			BadgeID:   sr.BadgeID,
			GrantedAt: now,
		}

		updated, badgeEvents := c.evaluator.EvaluateBadges(updated, c.catalog, now)
		granted = true
		return updated, append(events, badgeEvents...), nil
	})

	return granted, err
}
