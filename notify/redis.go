package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/gpiod/config"
)

// redisClient is the subset of *redis.Client used for publishing.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection with PING.
//
// Parameters:
//   - ctx: Context bounding the PING
//   - cfg: Redis address, credentials and channel
//
// Returns:
//   - A connected RedisPublisher
//   - An error if Redis cannot be reached
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("notify: redis ping %s: %w", cfg.Addr, err)
	}

	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

// Publish sends ev to the configured channel. Having no subscribers is not
// an error.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: redis publish to %s: %w", p.channel, err)
	}

	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
