package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/testutil"
)

func newTestLimiter(t *testing.T, cfg Config) Limiter {
	t.Helper()
	l, err := New(cfg, testutil.Logger(t))
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

func TestQuotaAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{TTSPerMinute: 5})

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}
	err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS)
	if !errors.IsKind(err, errors.KindRateLimited) {
		t.Fatalf("expected rate_limited on call 6, got %v", err)
	}

	typed := errors.Convert(err)
	if typed.RetryAfter <= 0 || typed.RetryAfter > time.Minute {
		t.Fatalf("retry after = %s", typed.RetryAfter)
	}
}

func TestQuotasAreIndependentPerSubject(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{TTSPerMinute: 2})

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
			t.Fatalf("alice call %d: %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "bob", "10.0.0.2", ClassTTS); err != nil {
		t.Fatalf("bob should have an untouched quota: %v", err)
	}
}

func TestGlobalQuotaCoversAllClasses(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{GlobalPerMinute: 3, TTSPerMinute: 100, ClonePerMinute: 100})

	if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
		t.Fatalf("tts: %v", err)
	}
	if err := l.Check(ctx, "alice", "10.0.0.1", ClassClone); err != nil {
		t.Fatalf("clone: %v", err)
	}
	if err := l.Check(ctx, "alice", "10.0.0.1", ClassGlobal); err != nil {
		t.Fatalf("global: %v", err)
	}
	if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); !errors.IsKind(err, errors.KindRateLimited) {
		t.Fatalf("expected global quota exhaustion, got %v", err)
	}
}

func TestCloneSourceHourlyCap(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{ClonePerSourceHourly: 5, ClonePerMinute: 100})

	// Different identities, same source address: the per-source guard
	// still counts them together.
	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, fmt.Sprintf("caller-%d", i), "10.0.0.9", ClassClone); err != nil {
			t.Fatalf("clone %d: %v", i+1, err)
		}
	}
	err := l.Check(ctx, "caller-x", "10.0.0.9", ClassClone)
	if !errors.IsKind(err, errors.KindRateLimited) {
		t.Fatalf("expected rate_limited on sixth clone, got %v", err)
	}
}

func TestRejectedCallStillCounts(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{TTSPerMinute: 1})

	if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// Hammering after rejection must never slip back under the quota.
	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); !errors.IsKind(err, errors.KindRateLimited) {
			t.Fatalf("retry %d unexpectedly allowed: %v", i+1, err)
		}
	}
}

func TestAnonymousFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Config{TTSPerMinute: 1})

	if err := l.Check(ctx, "", "10.0.0.1", ClassTTS); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := l.Check(ctx, "", "10.0.0.1", ClassTTS); !errors.IsKind(err, errors.KindRateLimited) {
		t.Fatalf("expected rate_limited keyed by source, got %v", err)
	}
	if err := l.Check(ctx, "", "10.0.0.2", ClassTTS); err != nil {
		t.Fatalf("different source should pass: %v", err)
	}
}

type brokenCounters struct{}

func (brokenCounters) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, fmt.Errorf("backend down")
}
func (brokenCounters) Close(context.Context) error { return nil }

func TestFailOpenAndClosed(t *testing.T) {
	ctx := context.Background()

	open := &limiter{cfg: Config{TTSPerMinute: 1, FailOpen: true}, store: brokenCounters{}}
	if err := open.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
		t.Fatalf("fail-open should allow: %v", err)
	}

	closed := &limiter{cfg: Config{TTSPerMinute: 1}, store: brokenCounters{}}
	if err := closed.Check(ctx, "alice", "10.0.0.1", ClassTTS); !errors.IsKind(err, errors.KindUpstream) {
		t.Fatalf("fail-closed should reject with upstream, got %v", err)
	}
}

func TestRedisDriver(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	l := newTestLimiter(t, Config{
		Driver:       DriverRedis,
		TTSPerMinute: 2,
		Redis:        &RedisConfig{Addr: mr.Addr()},
	})

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "alice", "10.0.0.1", ClassTTS); !errors.IsKind(err, errors.KindRateLimited) {
		t.Fatalf("expected rate_limited, got %v", err)
	}
}
