package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay carries published events between nodes that share a backbone.
type Relay interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	// Subscribe must return only once the subscription is live; handle runs on the relay's goroutine.
	Subscribe(ctx context.Context, handle func([]byte)) error
}

type redisRelay struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisRelay relays events through a Redis pub/sub channel.
func NewRedisRelay(client *redis.Client, channel string, logger zerolog.Logger) Relay {
	return &redisRelay{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis_relay").Logger(),
	}
}

func (r *redisRelay) Name() string { return "redis" }

func (r *redisRelay) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *redisRelay) Subscribe(ctx context.Context, handle func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
					return
				}
				r.logger.Error().Err(err).Msg("redis relay subscription closed")
				return
			}
			handle([]byte(msg.Payload))
		}
	}()
	return nil
}

type natsRelay struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSRelay relays events through a NATS subject. Every node subscribes without a queue group so all of them receive each event.
func NewNATSRelay(conn *nats.Conn, subject string, logger zerolog.Logger) Relay {
	return &natsRelay{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_relay").Logger(),
	}
}

func (r *natsRelay) Name() string { return "nats" }

func (r *natsRelay) Publish(_ context.Context, payload []byte) error {
	return r.conn.Publish(r.subject, payload)
}

func (r *natsRelay) Subscribe(ctx context.Context, handle func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.subject, err)
	}
	if err := r.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush %s subscription: %w", r.subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to drain nats relay subscription")
		}
	}()
	return nil
}
