// Package ratelimit gates mutating operations with per-caller and
// per-source counters. Counters are fixed windows keyed by
// (subject, action class, window start); the memory driver serves a single
// instance, the redis driver shares counts across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/logging"
)

// Class is the action class being limited.
type Class string

const (
	ClassGlobal Class = "global"
	ClassTTS    Class = "tts"
	ClassClone  Class = "clone"
)

// Limiter gates a request. Check increments the matching counters even when
// it rejects, so bursts cannot evade the count by retrying.
type Limiter interface {
	Check(ctx context.Context, identity, source string, class Class) error
	Close(ctx context.Context) error
}

// Config carries the quotas. A zero quota disables that limit. FailOpen
// governs behaviour when the counter backend is unreachable.
type Config struct {
	Driver               string
	FailOpen             bool
	GlobalPerMinute      int
	TTSPerMinute         int
	ClonePerMinute       int
	ClonePerSourceHourly int
	Redis                *RedisConfig
}

// RedisConfig captures connection options for the redis counter store.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// counterStore is the backend contract: atomically increment the counter
// for a window bucket and report the count after the increment.
type counterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Close(ctx context.Context) error
}

// Driver identifiers supported by the limiter.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New creates a limiter based on the provided configuration.
func New(cfg Config, logger *logging.Logger) (Limiter, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	var (
		store counterStore
		err   error
	)
	switch driver {
	case DriverMemory:
		store = newMemoryCounters()
	case DriverRedis:
		store, err = newRedisCounters(cfg.Redis)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported rate limit driver: %s", driver)
	}

	return &limiter{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}, nil
}

type limiter struct {
	cfg    Config
	store  counterStore
	logger *logging.Logger
}

// quota pairs a counter key with its window and cap.
type quota struct {
	key    string
	window time.Duration
	limit  int
}

func (l *limiter) Check(ctx context.Context, identity, source string, class Class) error {
	const op = "ratelimit.check"

	subject := identity
	if subject == "" {
		subject = source
	}

	quotas := make([]quota, 0, 3)
	if l.cfg.GlobalPerMinute > 0 {
		quotas = append(quotas, quota{
			key:    bucketKey("global", subject, time.Minute),
			window: time.Minute,
			limit:  l.cfg.GlobalPerMinute,
		})
	}
	switch class {
	case ClassTTS:
		if l.cfg.TTSPerMinute > 0 {
			quotas = append(quotas, quota{
				key:    bucketKey("tts", subject, time.Minute),
				window: time.Minute,
				limit:  l.cfg.TTSPerMinute,
			})
		}
	case ClassClone:
		if l.cfg.ClonePerMinute > 0 {
			quotas = append(quotas, quota{
				key:    bucketKey("clone", subject, time.Minute),
				window: time.Minute,
				limit:  l.cfg.ClonePerMinute,
			})
		}
		// Source-address abuse guard, independent of the caller quota:
		// cloning is the most resource-sensitive action.
		if l.cfg.ClonePerSourceHourly > 0 && source != "" {
			quotas = append(quotas, quota{
				key:    bucketKey("clone_src", source, time.Hour),
				window: time.Hour,
				limit:  l.cfg.ClonePerSourceHourly,
			})
		}
	}

	// Increment every matching counter first, reject after: a rejected
	// burst still counts.
	var reject *errors.Error
	for _, q := range quotas {
		count, err := l.store.Incr(ctx, q.key, q.window)
		if err != nil {
			if l.cfg.FailOpen {
				if l.logger != nil {
					l.logger.WarnTag("RateLimit", "counter store unavailable, failing open: %v", err)
				}
				continue
			}
			return errors.Wrap(errors.KindUpstream, op, "counter store unavailable", err)
		}
		if count > int64(q.limit) && reject == nil {
			reject = errors.RateLimited(op,
				fmt.Sprintf("%s quota exceeded", class), windowRemaining(q.window))
		}
	}
	if reject != nil {
		return reject
	}
	return nil
}

func (l *limiter) Close(ctx context.Context) error {
	return l.store.Close(ctx)
}

// bucketKey embeds the window start so counters expire by construction.
func bucketKey(class, subject string, window time.Duration) string {
	bucket := time.Now().Truncate(window).Unix()
	return fmt.Sprintf("%s:%s:%d", class, subject, bucket)
}

func windowRemaining(window time.Duration) time.Duration {
	now := time.Now()
	return now.Truncate(window).Add(window).Sub(now)
}
