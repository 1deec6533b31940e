package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns. A board is stored as a sorted set of userID -> rank plus a
// hash of userID -> Entry JSON, both replaced atomically on every refresh.
const (
	keyBoardRanks = "leaderboard:"
	keyBoardInfo  = "leaderboard:info:"
)

// BoardKey names a board, e.g. "points:weekly".
func BoardKey(category Category, window string) string {
	return fmt.Sprintf("%s:%s", category, window)
}

// BoardStore receives computed boards.
type BoardStore interface {
	Store(ctx context.Context, board string, entries []Entry) error
}

// RedisCache serves precomputed boards from Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a cache. A non-positive ttl keeps boards until the next refresh.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Store replaces the board with entries in a single MULTI/EXEC.
func (c *RedisCache) Store(ctx context.Context, board string, entries []Entry) error {
	ranksKey := keyBoardRanks + board
	infoKey := keyBoardInfo + board

	members := make([]redis.Z, 0, len(entries))
	info := make(map[string]any, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry for %s: %w", e.UserID, err)
		}
		members = append(members, redis.Z{Score: float64(e.Rank), Member: e.UserID})
		info[e.UserID] = string(data)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, ranksKey, infoKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, ranksKey, members...)
		pipe.HSet(ctx, infoKey, info)
		if c.ttl > 0 {
			pipe.Expire(ctx, ranksKey, c.ttl)
			pipe.Expire(ctx, infoKey, c.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store board %s: %w", board, err)
	}
	return nil
}

// Top returns the first limit entries of the board in rank order.
// A non-positive limit returns the whole board. A missing board returns nil.
func (c *RedisCache) Top(ctx context.Context, board string, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := c.client.ZRange(ctx, keyBoardRanks+board, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board %s: %w", board, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := c.client.HMGet(ctx, keyBoardInfo+board, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board info %s: %w", board, err)
	}

	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Rank without info; the board is being replaced.
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s on board %s: %w", ids[i], board, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Entry returns one user's entry, or nil when the user is not ranked.
func (c *RedisCache) Entry(ctx context.Context, board, userID string) (*Entry, error) {
	s, err := c.client.HGet(ctx, keyBoardInfo+board, userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s on board %s: %w", userID, board, err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s on board %s: %w", userID, board, err)
	}
	return &e, nil
}
