package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryCounters keeps fixed-window counters in process memory. Expired
// buckets are swept lazily on the next increment.
type memoryCounters struct {
	mu       sync.Mutex
	counts   map[string]*windowCount
	lastSwep time.Time
}

type windowCount struct {
	count   int64
	expires time.Time
}

const sweepEvery = time.Minute

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{
		counts:   make(map[string]*windowCount),
		lastSwep: time.Now(),
	}
}

func (m *memoryCounters) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastSwep) >= sweepEvery {
		for k, wc := range m.counts {
			if now.After(wc.expires) {
				delete(m.counts, k)
			}
		}
		m.lastSwep = now
	}

	wc, ok := m.counts[key]
	if !ok || now.After(wc.expires) {
		wc = &windowCount{expires: now.Truncate(window).Add(window)}
		m.counts[key] = wc
	}
	wc.count++
	return wc.count, nil
}

func (m *memoryCounters) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]*windowCount)
	return nil
}
