package publisher

import (
	"context"
	"log/slog"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// LogPublisher is a simple publisher for local development.
// Unlike MockEventPublisher (testify/mock), this doesn't require explicit setup
// and always succeeds with logged output.
//
// Use this when PUBLISHER_MODE=log. For tests, use MockEventPublisher or InMemoryBus.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a new logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs each event and returns success.
func (p *LogPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, ev := range events {
		p.logger.InfoContext(ctx, "Domain event",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"user_id", ev.UserID,
			"occurred_at", ev.OccurredAt,
			"data", ev.Data,
		)
	}
	return nil
}
