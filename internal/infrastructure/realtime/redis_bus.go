package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Pub/Sub channel shared by all API nodes.
const DefaultChannel = "messaging:events"

// RedisBus fans envelopes out to every node through Redis Pub/Sub. A node
// receives its own publishes too, so Publish never delivers locally.
type RedisBus struct {
	client  *redis.Client
	channel string
	router  *Router
	log     *zap.Logger
}

func NewRedisBus(client *redis.Client, channel string, router *Router, log *zap.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, router: router, log: log}
}

var _ Bus = (*RedisBus)(nil)

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run subscribes and delivers until ctx ends. go-redis reconnects the
// subscription on its own; envelopes published while disconnected are lost.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			n := b.router.Deliver(env.Recipients, env.Payload)
			b.log.Debug("envelope delivered", zap.Int("recipients", len(env.Recipients)), zap.Int("delivered", n))
		}
	}
}

func (b *RedisBus) Close() error { return nil }
