package ws

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/playmatatu/duel/internal/events"
)

// StartEventSubscriber forwards every match event published on Redis to the
// sockets of that match. Queue events without a match go to the user's sockets.
func StartEventSubscriber(ctx context.Context, rdb *redis.Client, hub *Hub, logger *slog.Logger) error {
	logger = logger.With("component", "ws")
	err := events.Subscribe(ctx, rdb, logger, func(e events.Event) {
		Dispatch(hub, e)
	})
	if err != nil {
		return err
	}
	logger.Info("match_events subscriber started")
	return nil
}

// Dispatch routes one event to the hub.
func Dispatch(hub *Hub, e events.Event) {
	switch {
	case e.MatchID != "":
		hub.BroadcastToMatch(e.MatchID, e)
		// players may be watching only another socket while a match forms
		if e.Type == events.MatchCreated || e.Type == events.MatchPaired || e.Type == events.PriorityCreated {
			for _, uid := range e.Players {
				hub.SendToUser(uid, e)
			}
		}
	case e.UserID != "":
		hub.SendToUser(e.UserID, e)
	}
}

// LocalPublisher delivers events straight to this process's hub after
// handing them to next. It stands in for the Redis round trip when a single
// instance runs without Redis.
type LocalPublisher struct {
	next events.Publisher
	hub  *Hub
}

func NewLocalPublisher(next events.Publisher, hub *Hub) *LocalPublisher {
	return &LocalPublisher{next: next, hub: hub}
}

func (p *LocalPublisher) Publish(ctx context.Context, e events.Event) error {
	err := p.next.Publish(ctx, e)
	Dispatch(p.hub, e)
	return err
}
