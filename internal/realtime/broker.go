package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

const DefaultChannel = "nicoplay:events"

// Broker publishes events to every instance's hub.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalBroker delivers straight to the in-process hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(ctx context.Context, ev Event) error {
	return b.hub.Broadcast(ctx, ev)
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBroker relays events through a Redis channel so viewers connected to
// any instance receive them. Run must be started to feed the local hub.
type RedisBroker struct {
	rdb     redisClient
	hub     *Hub
	channel string
}

func NewRedisBroker(rdb redisClient, hub *Hub, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{rdb: rdb, hub: hub, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run forwards channel messages to the hub until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	slog.Info("realtime: subscribed to redis channel", "channel", b.channel)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Warn("realtime: redis subscription closed", "channel", b.channel)
				return
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *RedisBroker) handle(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Warn("realtime: discarding malformed event", "error", err)
		return
	}
	if ev.VideoID == "" {
		slog.Warn("realtime: discarding event without video id", "type", ev.Type)
		return
	}
	if err := b.hub.Broadcast(ctx, ev); err != nil {
		slog.Error("realtime: failed to broadcast relayed event", "video_id", ev.VideoID, "error", err)
	}
}
