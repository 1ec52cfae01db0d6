package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/storage"
)

var dbSeq int

func newTestJobStores(t *testing.T) map[string]Store {
	t.Helper()

	dbSeq++
	db, err := storage.Open(fmt.Sprintf("file:job-test-%d?mode=memory&cache=shared", dbSeq))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gormStore, err := NewStore(DriverSQLite, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("sqlite job store: %v", err)
	}

	memStore, err := NewStore(DriverMemory, Dependencies{})
	if err != nil {
		t.Fatalf("memory job store: %v", err)
	}
	return map[string]Store{"memory": memStore, "sqlite": gormStore}
}

func queuedJob(id string, created time.Time) *Job {
	return &Job{
		ID:          id,
		Kind:        "narrate",
		State:       StateQueued,
		SubmittedBy: "alice",
		Payload:     json.RawMessage(`{"text":"hello"}`),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newTestJobStores(t) {
		t.Run(name, func(t *testing.T) {
			j := queuedJob("rt-1", time.Now())
			if err := store.Insert(ctx, j); err != nil {
				t.Fatalf("insert: %v", err)
			}
			got, err := store.Get(ctx, "rt-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.State != StateQueued || got.SubmittedBy != "alice" || got.Kind != "narrate" {
				t.Fatalf("got %+v", got)
			}
			if _, err := store.Get(ctx, "ghost"); !errors.IsKind(err, errors.KindNotFound) {
				t.Fatalf("expected not_found, got %v", err)
			}
		})
	}
}

func TestClaimOldestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	for name, store := range newTestJobStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Insert(ctx, queuedJob("newer", base.Add(10*time.Second))); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if err := store.Insert(ctx, queuedJob("older", base)); err != nil {
				t.Fatalf("insert: %v", err)
			}

			first, err := store.Claim(ctx)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if first == nil || first.ID != "older" {
				t.Fatalf("claimed %+v, want older", first)
			}
			if first.State != StateRunning || first.HeartbeatAt == nil {
				t.Fatalf("claimed job not running: %+v", first)
			}

			second, err := store.Claim(ctx)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if second == nil || second.ID != "newer" {
				t.Fatalf("claimed %+v, want newer", second)
			}

			third, err := store.Claim(ctx)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if third != nil {
				t.Fatalf("empty queue yielded %+v", third)
			}
		})
	}
}

func TestClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(DriverMemory, Dependencies{})
	if err != nil {
		t.Fatalf("memory job store: %v", err)
	}
	if err := store.Insert(ctx, queuedJob("solo", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := store.Claim(ctx)
			if err == nil && j != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("job claimed %d times", wins)
	}
}

func TestTransitionQueued(t *testing.T) {
	ctx := context.Background()
	for name, store := range newTestJobStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Insert(ctx, queuedJob("cancel-me", time.Now())); err != nil {
				t.Fatalf("insert: %v", err)
			}

			ok, err := store.TransitionQueued(ctx, "cancel-me", StateCancelled)
			if err != nil || !ok {
				t.Fatalf("transition: ok=%v err=%v", ok, err)
			}

			// Already terminal: the CAS must lose.
			ok, err = store.TransitionQueued(ctx, "cancel-me", StateCancelled)
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if ok {
				t.Fatalf("transition of a cancelled job reported success")
			}

			if _, err := store.TransitionQueued(ctx, "ghost", StateCancelled); !errors.IsKind(err, errors.KindNotFound) {
				t.Fatalf("expected not_found, got %v", err)
			}
		})
	}
}

func TestStaleListsLapsedHeartbeats(t *testing.T) {
	ctx := context.Background()
	for name, store := range newTestJobStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Insert(ctx, queuedJob("stale-1", time.Now().Add(-time.Hour))); err != nil {
				t.Fatalf("insert: %v", err)
			}
			j, err := store.Claim(ctx)
			if err != nil || j == nil {
				t.Fatalf("claim: %v", err)
			}
			if err := store.Heartbeat(ctx, j.ID, time.Now().Add(-10*time.Minute)); err != nil {
				t.Fatalf("heartbeat: %v", err)
			}

			stale, err := store.Stale(ctx, time.Now().Add(-5*time.Minute))
			if err != nil {
				t.Fatalf("stale: %v", err)
			}
			if len(stale) != 1 || stale[0].ID != "stale-1" {
				t.Fatalf("stale = %+v", stale)
			}

			// A fresh heartbeat drops it off the list.
			if err := store.Heartbeat(ctx, j.ID, time.Now()); err != nil {
				t.Fatalf("heartbeat: %v", err)
			}
			stale, err = store.Stale(ctx, time.Now().Add(-5*time.Minute))
			if err != nil {
				t.Fatalf("stale: %v", err)
			}
			if len(stale) != 0 {
				t.Fatalf("stale = %+v", stale)
			}
		})
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	for name, store := range newTestJobStores(t) {
		t.Run(name, func(t *testing.T) {
			old := queuedJob("expired", time.Now().Add(-48*time.Hour))
			if err := store.Insert(ctx, old); err != nil {
				t.Fatalf("insert: %v", err)
			}
			old.State = StateSucceeded
			ref := "narrate/expired.wav"
			old.ResultRef = &ref
			old.UpdatedAt = time.Now().Add(-48 * time.Hour)
			if err := store.Update(ctx, old); err != nil {
				t.Fatalf("update: %v", err)
			}

			if err := store.Insert(ctx, queuedJob("live", time.Now())); err != nil {
				t.Fatalf("insert: %v", err)
			}

			// Queued jobs never expire, terminal ones past the cutoff do.
			removed, err := store.DeleteTerminalBefore(ctx, time.Now().Add(-time.Hour))
			if err != nil {
				t.Fatalf("gc: %v", err)
			}
			// The Update stamps UpdatedAt to now, so the terminal job is
			// not yet past the cutoff.
			if removed != 0 {
				t.Fatalf("removed %d, want 0", removed)
			}

			removed, err = store.DeleteTerminalBefore(ctx, time.Now().Add(time.Hour))
			if err != nil {
				t.Fatalf("gc: %v", err)
			}
			if removed != 1 {
				t.Fatalf("removed %d, want 1", removed)
			}
			if _, err := store.Get(ctx, "live"); err != nil {
				t.Fatalf("queued job was collected: %v", err)
			}
		})
	}
}
