package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/logging"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "storefront:storage-events"

// Redis publishes notifications on a Redis channel so carts in other
// processes see them. Local subscribers only receive what Run reads back
// from the channel.
type Redis struct {
	client  *redis.Client
	channel string
	hub     *Hub
	ready   chan struct{}
	logger  *zap.Logger
}

func NewRedis(client *redis.Client, channel string, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  client,
		channel: channel,
		hub:     NewHub(),
		ready:   make(chan struct{}),
		logger:  logging.OrNop(logger).Named("broadcast"),
	}
}

func (r *Redis) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(fn func(Notification)) func() {
	return r.hub.Subscribe(fn)
}

// Ready is closed once Run holds an active subscription.
func (r *Redis) Ready() <-chan struct{} {
	return r.ready
}

// Run forwards channel messages to local subscribers until ctx is done.
func (r *Redis) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("listening", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				r.logger.Warn("dropping malformed notification", zap.Error(err))
				continue
			}
			r.hub.dispatch(n)
		}
	}
}
