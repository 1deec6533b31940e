package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// RedisStreamConfig configures RedisStreamPublisher.
type RedisStreamConfig struct {
	Stream         string        // Stream key, e.g. "tabanok:events"
	MaxLen         int64         // Approximate stream cap (XADD MAXLEN ~); 0 disables trimming
	MaxRetries     int           // Attempts after the first failure
	InitialBackoff time.Duration // Doubled after every failed attempt
}

// DefaultRedisStreamConfig returns sensible defaults.
func DefaultRedisStreamConfig() RedisStreamConfig {
	return RedisStreamConfig{
		Stream:         "tabanok:events",
		MaxLen:         100_000,
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
	}
}

// RedisStreamPublisher appends events to a Redis stream, one entry per event.
// Each entry carries the event type and user for routing plus the full JSON
// event in "payload". A retried pipeline may append an entry twice, so
// consumers deduplicate on event_id.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	cfg    RedisStreamConfig
	logger *slog.Logger
}

// NewRedisStreamPublisher creates a stream publisher.
func NewRedisStreamPublisher(client redis.UniversalClient, cfg RedisStreamConfig, logger *slog.Logger) *RedisStreamPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultRedisStreamConfig().Stream
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRedisStreamConfig().InitialBackoff
	}
	return &RedisStreamPublisher{client: client, cfg: cfg, logger: logger}
}

// Publish appends every event in a single pipeline, retrying transient failures
// with exponential backoff.
func (p *RedisStreamPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]*redis.XAddArgs, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}

		args = append(args, &redis.XAddArgs{
			Stream: p.cfg.Stream,
			MaxLen: p.cfg.MaxLen,
			Approx: p.cfg.MaxLen > 0,
			Values: map[string]any{
				"event_id": ev.ID,
				"type":     string(ev.Type),
				"user_id":  ev.UserID,
				"payload":  string(payload),
			},
		})
	}

	backoff := p.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		_, lastErr = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, a := range args {
				pipe.XAdd(ctx, a)
			}
			return nil
		})
		if lastErr == nil {
			return nil
		}

		if !IsRetryableError(lastErr) {
			return fmt.Errorf("failed to publish %d events to %s: %w", len(events), p.cfg.Stream, lastErr)
		}

		p.logger.WarnContext(ctx, "Publish to stream failed, retrying",
			"stream", p.cfg.Stream,
			"attempt", attempt+1,
			"events", len(events),
			"error", lastErr,
		)
	}

	return fmt.Errorf("failed to publish %d events to %s after %d attempts: %w",
		len(events), p.cfg.Stream, p.cfg.MaxRetries+1, lastErr)
}
