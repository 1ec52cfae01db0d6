package artifact

import (
	"bytes"
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"kani-tts-server/internal/platform/errors"
)

func startNATS(t *testing.T) string {
	t.Helper()

	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new nats server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatalf("nats server did not start")
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func TestNATSRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewNATS(&NATSConfig{URL: startNATS(t), Bucket: "test-artifacts"})
	if err != nil {
		t.Fatalf("new nats store: %v", err)
	}
	defer store.Close(ctx)

	payload := []byte("narration audio bytes")
	if err := store.Put(ctx, "narrate/job-1.wav", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "narrate/job-1.wav")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes", len(got))
	}

	if err := store.Delete(ctx, "narrate/job-1.wav"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "narrate/job-1.wav"); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestNATSBindExistingBucket(t *testing.T) {
	ctx := context.Background()
	url := startNATS(t)

	first, err := NewNATS(&NATSConfig{URL: url, Bucket: "shared"})
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := first.Put(ctx, "voices/a.bin", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	defer first.Close(ctx)

	second, err := NewNATS(&NATSConfig{URL: url, Bucket: "shared"})
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	defer second.Close(ctx)

	got, err := second.Get(ctx, "voices/a.bin")
	if err != nil {
		t.Fatalf("get through second handle: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q", got)
	}
}
