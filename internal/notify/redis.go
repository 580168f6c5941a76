// Package notify publishes score totals to outside collaborators (the
// hosting page, dashboards). Fire-and-forget: a failed notification is
// logged, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pixelclass/render-judge/internal/scoring"
)

// RedisNotifier publishes totals on a pub/sub channel and keeps the latest
// snapshot under a key so late subscribers can catch up.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	key     string
}

// NewRedisNotifier connects to Redis and verifies connectivity.
func NewRedisNotifier(address, password string, db int, channel, key string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisNotifier{
		client:  client,
		channel: channel,
		key:     key,
	}, nil
}

// NotifyScore publishes new totals. Best effort.
func (n *RedisNotifier) NotifyScore(ctx context.Context, totals scoring.Totals) {
	data, err := json.Marshal(totals)
	if err != nil {
		slog.Error("failed to marshal score totals", "error", err)
		return
	}

	if err := n.client.Set(ctx, n.key, data, 0).Err(); err != nil {
		slog.Warn("failed to store score totals", "error", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		slog.Warn("failed to publish score totals", "error", err)
		return
	}

	slog.Debug("score totals published",
		"all_points", totals.AllPoints,
		"all_max_points", totals.AllMaxPoints,
	)
}

// HealthCheck verifies Redis connectivity.
func (n *RedisNotifier) HealthCheck(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
