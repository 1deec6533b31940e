package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabanok/progression-engine/pkg/domain"
)

// setupTestRedis connects to a local Redis or skips the test.
// Run with: docker run -d --name test-redis -p 6379:6379 redis:7
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping integration test: redis not available: %v", err)
		return nil
	}

	return client
}

func TestRedisStreamPublisher_Publish(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	stream := fmt.Sprintf("test:events:%d", time.Now().UnixNano())
	defer client.Del(ctx, stream)

	cfg := DefaultRedisStreamConfig()
	cfg.Stream = stream
	pub := NewRedisStreamPublisher(client, cfg, nil)

	events := sampleEvents()
	require.NoError(t, pub.Publish(ctx, events...))

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, string(domain.EventPointsAwarded), entries[0].Values["type"])
	assert.Equal(t, "user-1", entries[0].Values["user_id"])

	var decoded domain.Event
	require.NoError(t, json.Unmarshal([]byte(entries[1].Values["payload"].(string)), &decoded))
	assert.Equal(t, events[1].ID, decoded.ID)
	assert.Equal(t, domain.EventLevelUp, decoded.Type)
}

func TestRedisStreamPublisher_NoEvents(t *testing.T) {
	// No client calls are made for an empty batch.
	pub := NewRedisStreamPublisher(nil, RedisStreamConfig{}, nil)
	assert.NoError(t, pub.Publish(context.Background()))
}

func TestRedisStreamPublisher_CancelledContextStopsRetry(t *testing.T) {
	// Nothing listens on this port, so every attempt fails with a network error.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	pub := NewRedisStreamPublisher(client, RedisStreamConfig{
		Stream:         "test:unreachable",
		MaxRetries:     5,
		InitialBackoff: time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := pub.Publish(ctx, sampleEvents()...)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
