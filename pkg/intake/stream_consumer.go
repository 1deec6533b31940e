// Package intake feeds activity events from a Redis stream into the award coordinator.
package intake

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
)

// Recorder applies one activity. Implemented by coordinator.AwardCoordinator.
type Recorder interface {
	RecordActivity(ctx context.Context, ev domain.ActivityEvent) (*domain.Profile, error)
}

// StreamConfig configures StreamConsumer.
type StreamConfig struct {
	Stream       string        // e.g. "tabanok:activity"
	Group        string        // Consumer group shared by all workers
	Consumer     string        // Unique name of this worker inside the group
	BatchSize    int64         // Entries read per XREADGROUP
	Block        time.Duration // How long XREADGROUP waits for new entries
	ClaimMinIdle time.Duration // Pending entries idle this long are reclaimed from dead consumers
	ErrorBackoff time.Duration // Pause after a Redis error
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Stream:       "tabanok:activity",
		Group:        "progression-engine",
		Consumer:     "worker-1",
		BatchSize:    50,
		Block:        5 * time.Second,
		ClaimMinIdle: time.Minute,
		ErrorBackoff: time.Second,
	}
}

// StreamConsumer reads activity entries through a consumer group.
//
// An entry is acknowledged once the coordinator has applied it or rejected it
// permanently (malformed payload, validation failure). Conflicts and
// persistence failures leave the entry pending so it is redelivered after
// ClaimMinIdle. Replays are safe because the coordinator is idempotent on the
// activity ID.
//
// Entries for one user are applied in stream order. Once an entry is left
// pending, later entries for the same user are held unacknowledged behind it
// and are only applied after it has been acknowledged. A hold that is not
// renewed for twice ClaimMinIdle is dropped, which covers entries claimed by
// another consumer. Ordering is per consumer: two consumers in the group may
// still interleave entries for the same user.
type StreamConsumer struct {
	client   redis.UniversalClient
	recorder Recorder
	cfg      StreamConfig
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	holds map[string]*userHold // user ID -> entries left pending
}

type userHold struct {
	entries []string // ascending stream IDs
	renewed time.Time
}

// NewStreamConsumer creates a consumer. Zero config fields take the defaults.
func NewStreamConsumer(client redis.UniversalClient, recorder Recorder, cfg StreamConfig, logger *slog.Logger) *StreamConsumer {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultStreamConfig()
	if cfg.Stream == "" {
		cfg.Stream = defaults.Stream
	}
	if cfg.Group == "" {
		cfg.Group = defaults.Group
	}
	if cfg.Consumer == "" {
		cfg.Consumer = defaults.Consumer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Block <= 0 {
		cfg.Block = defaults.Block
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = defaults.ClaimMinIdle
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}

	return &StreamConsumer{
		client:   client,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		holds:    make(map[string]*userHold),
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Run consumes until ctx is cancelled. Redis errors are logged and retried.
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Activity consumer started",
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.Consumer,
	)

	for {
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "Activity consumer stopped", "consumer", c.cfg.Consumer)
			return nil
		}

		if _, err := c.ProcessBatch(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.ErrorContext(ctx, "Failed to read activity stream", "stream", c.cfg.Stream, "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.ErrorBackoff):
			}
		}
	}
}

// ProcessBatch reclaims stale pending entries, then reads and handles one batch
// of new entries. Returns the number of entries acknowledged.
func (c *StreamConsumer) ProcessBatch(ctx context.Context) (int, error) {
	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim pending entries: %w", err)
	}

	acked, err := c.handle(ctx, claimed)
	if err != nil {
		return acked, err
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if stderrors.Is(err, redis.Nil) {
		return acked, nil
	}
	if err != nil {
		return acked, fmt.Errorf("failed to read group %s: %w", c.cfg.Group, err)
	}

	for _, s := range streams {
		n, err := c.handle(ctx, s.Messages)
		acked += n
		if err != nil {
			return acked, err
		}
	}

	return acked, nil
}

// handle processes entries in stream order and acknowledges the finished ones.
func (c *StreamConsumer) handle(ctx context.Context, msgs []redis.XMessage) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireHolds()

	var ids []string
	for _, msg := range msgs {
		if c.process(ctx, msg) {
			ids = append(ids, msg.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, ids...).Err(); err != nil {
		return 0, fmt.Errorf("failed to ack %d entries: %w", len(ids), err)
	}
	return len(ids), nil
}

// process applies one entry and reports whether it should be acknowledged.
// Callers hold c.mu.
func (c *StreamConsumer) process(ctx context.Context, msg redis.XMessage) bool {
	ev, err := DecodeMessage(msg)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping malformed activity entry", "entry_id", msg.ID, "error", err)
		return true
	}

	if head, ok := c.heldBehind(ev.UserID, msg.ID); ok {
		c.logger.DebugContext(ctx, "Activity held behind an earlier pending entry",
			"entry_id", msg.ID,
			"event_id", ev.ID,
			"user_id", ev.UserID,
			"pending_entry_id", head,
		)
		c.hold(ev.UserID, msg.ID)
		return false
	}

	if c.apply(ctx, msg.ID, ev) {
		c.release(ev.UserID, msg.ID)
		return true
	}
	c.hold(ev.UserID, msg.ID)
	return false
}

func (c *StreamConsumer) apply(ctx context.Context, entryID string, ev domain.ActivityEvent) bool {
	_, err := c.recorder.RecordActivity(ctx, ev)
	if err == nil {
		return true
	}

	if ShouldRetry(err) {
		c.logger.WarnContext(ctx, "Activity left pending for retry",
			"entry_id", entryID,
			"event_id", ev.ID,
			"user_id", ev.UserID,
			"error", err,
		)
		return false
	}

	c.logger.WarnContext(ctx, "Activity rejected",
		"entry_id", entryID,
		"event_id", ev.ID,
		"user_id", ev.UserID,
		"code", errors.CodeOf(err),
		"error", err,
	)
	return true
}

// heldBehind reports whether userID has an older entry left pending, returning
// its ID.
func (c *StreamConsumer) heldBehind(userID, entryID string) (string, bool) {
	h, ok := c.holds[userID]
	if !ok || len(h.entries) == 0 {
		return "", false
	}
	head := h.entries[0]
	return head, compareEntryIDs(entryID, head) > 0
}

func (c *StreamConsumer) hold(userID, entryID string) {
	h, ok := c.holds[userID]
	if !ok {
		h = &userHold{}
		c.holds[userID] = h
	}
	h.renewed = c.now()

	i, found := slices.BinarySearchFunc(h.entries, entryID, compareEntryIDs)
	if !found {
		h.entries = slices.Insert(h.entries, i, entryID)
	}
}

func (c *StreamConsumer) release(userID, entryID string) {
	h, ok := c.holds[userID]
	if !ok {
		return
	}
	h.entries = slices.DeleteFunc(h.entries, func(id string) bool { return id == entryID })
	if len(h.entries) == 0 {
		delete(c.holds, userID)
	}
}

func (c *StreamConsumer) expireHolds() {
	cutoff := c.now().Add(-2 * c.cfg.ClaimMinIdle)
	for userID, h := range c.holds {
		if h.renewed.Before(cutoff) {
			delete(c.holds, userID)
		}
	}
}

// compareEntryIDs orders stream IDs ("<ms>-<seq>") numerically. IDs that do not
// parse compare as strings.
func compareEntryIDs(a, b string) int {
	am, as, aok := parseEntryID(a)
	bm, bs, bok := parseEntryID(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	if am != bm {
		if am < bm {
			return -1
		}
		return 1
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func parseEntryID(id string) (uint64, uint64, bool) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, false
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ms, seq, true
}

// ShouldRetry reports whether a failed activity should stay pending.
// Conflicts, persistence failures, cancellations and unclassified errors are
// transient. Any other engine error would fail the same way again.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsConcurrencyConflict(err) || errors.IsPersistence(err) {
		return true
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.CodeOf(err) == ""
}

// DecodeMessage decodes the JSON activity in the entry's "payload" field.
// A payload without an ID uses the stream entry ID as the idempotence key.
func DecodeMessage(msg redis.XMessage) (domain.ActivityEvent, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return domain.ActivityEvent{}, errors.ErrValidationFailed("payload", "missing or not a string")
	}

	var ev domain.ActivityEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return domain.ActivityEvent{}, errors.ErrValidationFailed("payload", err.Error())
	}
	if ev.ID == "" {
		ev.ID = msg.ID
	}
	return ev, nil
}

// Enqueue appends an activity to the stream. Used by producers and tests.
func Enqueue(ctx context.Context, client redis.UniversalClient, stream string, ev domain.ActivityEvent) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal activity %s: %w", ev.ID, err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"user_id": ev.UserID,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue activity %s: %w", ev.ID, err)
	}
	return id, nil
}
