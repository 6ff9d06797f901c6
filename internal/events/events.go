// Package events carries match state changes to interested processes over
// Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis channel every event is published on.
const Channel = "match_events"

// Event types
const (
	MatchCreated    = "match_created"
	MatchPaired     = "match_paired"
	MatchStarted    = "match_started"
	ProgressMerged  = "progress_merged"
	MatchCompleted  = "match_completed"
	MatchCancelled  = "match_cancelled"
	QueueExpired    = "queue_expired"
	QueueCancelled  = "queue_cancelled"
	PriorityCreated = "priority_created"
)

type Event struct {
	Type     string    `json:"type"`
	MatchID  string    `json:"match_id,omitempty"`
	QueueID  string    `json:"queue_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Players  []string  `json:"players,omitempty"`
	Status   string    `json:"status,omitempty"`
	WinnerID string    `json:"winner_id,omitempty"`
	Draw     bool      `json:"draw,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events. Delivery is best effort; state lives in the store.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher publishes JSON events on Channel.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger.With("component", "events")}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	n, err := p.rdb.Publish(ctx, Channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	p.logger.Debug("published", "type", e.Type, "match_id", e.MatchID, "subscribers", n)
	return nil
}

// LogPublisher only logs events. It backs deployments without Redis.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.Info("event", "type", e.Type, "match_id", e.MatchID, "queue_id", e.QueueID, "user_id", e.UserID)
	return nil
}

// Subscribe delivers decoded events from Channel to handle until ctx is done.
// Payloads that fail to decode are logged and skipped.
func Subscribe(ctx context.Context, rdb *redis.Client, logger *slog.Logger, handle func(Event)) error {
	pubsub := rdb.Subscribe(ctx, Channel)
	// wait for the subscription to be confirmed so no event published
	// after Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.Warn("invalid event payload", "error", err)
					continue
				}
				handle(e)
			}
		}
	}()
	return nil
}
