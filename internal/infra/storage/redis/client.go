// Package redis stores telemetry snapshots in Redis. The latest snapshot of
// each network is kept under its own key with a TTL and every update is
// also announced on a pub/sub channel.
package redis

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultSnapshotTTL = time.Minute

type client struct {
	conn        *redis.Client
	snapshotTTL time.Duration
}

func (c *client) Close() error {
	return c.conn.Close()
}

type config struct {
	snapshotTTL time.Duration
}

type Option func(*config)

// WithSnapshotTTL sets how long a snapshot key outlives its last update.
// Zero keeps keys forever.
func WithSnapshotTTL(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.snapshotTTL = d
		}
	}
}

func NewClient(ctx context.Context, addr, username, password string, db int, opts ...Option) (*client, error) {
	cfg := config{
		snapshotTTL: defaultSnapshotTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &client{
		conn:        conn,
		snapshotTTL: cfg.snapshotTTL,
	}, nil
}
