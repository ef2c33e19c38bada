package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/wire"
)

// TypeStats is the envelope type of stats messages.
const TypeStats = "stats"

// DefaultStatsTTL bounds how long the latest snapshot key survives without
// a refresh.
const DefaultStatsTTL = 30 * time.Second

// RedisClient is the subset of go-redis used by the stats sink.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStatsSink publishes every update on a channel and keeps the latest
// one under <channel>:latest for readers that join late.
type RedisStatsSink struct {
	client      RedisClient
	channel     string
	key         string
	ttl         time.Duration
	recentLimit int
	now         func() time.Time
}

// NewRedisStatsSink connects to addr and pings it once.
func NewRedisStatsSink(ctx context.Context, addr, password string, db int, channel string, recentLimit int) (*RedisStatsSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStatsSinkWithClient(client, channel, recentLimit), nil
}

// NewRedisStatsSinkWithClient wraps an existing client.
func NewRedisStatsSinkWithClient(client RedisClient, channel string, recentLimit int) *RedisStatsSink {
	return &RedisStatsSink{
		client:      client,
		channel:     channel,
		key:         channel + ":latest",
		ttl:         DefaultStatsTTL,
		recentLimit: recentLimit,
		now:         time.Now,
	}
}

// Close closes the client.
func (s *RedisStatsSink) Close() error {
	return s.client.Close()
}

// Consume publishes u and stores it as the latest snapshot.
func (s *RedisStatsSink) Consume(ctx context.Context, u publish.Update) error {
	b, err := encode(TypeStats, wire.NewStats(u, s.recentLimit), s.now())
	if err != nil {
		return err
	}

	receivers, err := s.client.Publish(ctx, s.channel, b).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	if err := s.client.Set(ctx, s.key, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	slog.Debug("stats_emitted", "seq", u.Seq, "channel", s.channel, "receivers", receivers)
	return nil
}
