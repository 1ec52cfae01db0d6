package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounters shares fixed-window counters across instances. The window
// start is embedded in the key, so the TTL only has to outlive the window.
type redisCounters struct {
	client *redis.Client
	prefix string
}

func newRedisCounters(cfg *RedisConfig) (*redisCounters, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis rate limit driver requires redis configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &redisCounters{client: client, prefix: prefix}, nil
}

func (r *redisCounters) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := r.prefix + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.Expire(ctx, full, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return incr.Val(), nil
}

func (r *redisCounters) Close(context.Context) error {
	return r.client.Close()
}
