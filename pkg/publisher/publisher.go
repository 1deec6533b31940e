// Package publisher delivers committed domain events to downstream consumers
// such as notifications and leaderboards.
package publisher

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// EventPublisher publishes domain events after the profile transaction commits.
//
// Publish is called at most once per committed activity with all events for
// that activity in emission order. Implementations should return an error only
// when no event could be delivered; the coordinator logs and does not retry.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Func adapts a function to EventPublisher.
type Func func(ctx context.Context, events ...domain.Event) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, events ...domain.Event) error {
	return f(ctx, events...)
}

// Multi fans events out to every publisher and joins their errors.
type Multi []EventPublisher

// Publish publishes to each publisher in order, continuing past failures.
func (m Multi) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsRetryableError determines if a publish error should be retried.
//
// Classification strategy:
//  1. Context cancellation is never retried
//  2. Network errors (timeouts, refused connections) are retried
//  3. Redis server errors are classified by their error prefix
//  4. Everything else is retried
//
// Non-retryable Redis errors:
//   - NOAUTH / WRONGPASS - invalid credentials
//   - NOPERM - ACL denies the command
//   - WRONGTYPE - key holds a different data type
//   - ERR - malformed command or argument
//
// Retryable Redis errors:
//   - LOADING - server is loading its dataset
//   - BUSY - a script is running
//   - TRYAGAIN / CLUSTERDOWN / MOVED / ASK - cluster resharding
//   - READONLY - failover in progress
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return isRetryableRedisMessage(redisErr.Error())
	}

	return isRetryableRedisMessage(err.Error())
}

func isRetryableRedisMessage(msg string) bool {
	upper := strings.ToUpper(strings.TrimSpace(msg))

	nonRetryablePrefixes := []string{
		"NOAUTH",
		"WRONGPASS",
		"NOPERM",
		"WRONGTYPE",
		"ERR ",
	}

	for _, prefix := range nonRetryablePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return false
		}
	}

	// LOADING, BUSY, TRYAGAIN, CLUSTERDOWN, READONLY, MOVED, ASK, connection
	// resets and anything unknown.
	return true
}
