package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// Handler consumes a published event. Handler errors are logged by the bus.
type Handler func(ctx context.Context, ev domain.Event) error

// InMemoryBus dispatches events synchronously to in-process subscribers.
// It also records every published event, which tests use to assert emission order.
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[domain.EventType][]Handler
	all       []Handler
	published []domain.Event
	logger    *slog.Logger
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(logger *slog.Logger) *InMemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		handlers: make(map[domain.EventType][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryBus) Subscribe(eventType domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryBus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, h)
}

// Publish records the events and dispatches them in order.
func (b *InMemoryBus) Publish(ctx context.Context, events ...domain.Event) error {
	b.mu.Lock()
	b.published = append(b.published, events...)
	b.mu.Unlock()

	for _, ev := range events {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.handlers[ev.Type])+len(b.all))
		handlers = append(handlers, b.handlers[ev.Type]...)
		handlers = append(handlers, b.all...)
		b.mu.RUnlock()

		for _, h := range handlers {
			if err := h(ctx, ev); err != nil {
				b.logger.WarnContext(ctx, "Event handler failed",
					"event_id", ev.ID,
					"type", string(ev.Type),
					"user_id", ev.UserID,
					"error", err,
				)
			}
		}
	}

	return nil
}

// Published returns a copy of all events published so far.
func (b *InMemoryBus) Published() []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Event, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedOfType returns the published events of one type.
func (b *InMemoryBus) PublishedOfType(eventType domain.EventType) []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.Event
	for _, ev := range b.published {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Reset clears recorded events. Subscriptions are kept.
func (b *InMemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = nil
}
