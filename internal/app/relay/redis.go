/*
Package relay carries fan-out envelopes between server instances over Redis pub/sub.
*/
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"convochat/internal/app/chat"
	"convochat/internal/pkg/logx"
)

// DefaultChannel is the pub/sub channel shared by all instances.
const DefaultChannel = "convochat:fanout"

// Redis implements chat.Relay. Every instance subscribes to one channel, so an envelope
// published anywhere reaches the local rooms of every instance in the order Redis received it.
type Redis struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  client,
		channel: channel,
		logger:  logx.Component("relay").With().Str("channel", channel).Logger(),
	}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Publish(ctx context.Context, env chat.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run subscribes and delivers envelopes until ctx is cancelled. ready is called once Redis has
// confirmed the subscription, so nothing published after it returns is missed.
func (r *Redis) Run(ctx context.Context, ready func(), deliver func(chat.Envelope)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.logger.Info().Msg("Relay subscribed.")
	ready()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", r.channel)
			}

			var env chat.Envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				r.logger.Warn().Err(err).Msg("Discarded malformed envelope.")
				continue
			}
			deliver(env)
		}
	}
}

var _ chat.Relay = (*Redis)(nil)
