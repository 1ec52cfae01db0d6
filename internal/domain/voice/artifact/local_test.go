package artifact

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"kani-tts-server/internal/platform/errors"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	payload := []byte("speaker embedding bytes")
	if err := store.Put(ctx, "voices/abc.bin", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "voices/abc.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q", got)
	}
}

func TestLocalOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	if err := store.Put(ctx, "voices/a.bin", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "voices/a.bin", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Get(ctx, "voices/a.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalGetMissing(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if _, err := store.Get(context.Background(), "voices/nope.bin"); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	if err := store.Put(ctx, "voices/gone.bin", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "voices/gone.bin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "voices", "gone.bin")); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if err := store.Put(context.Background(), "../escape.bin", []byte("x")); err == nil {
		t.Fatalf("expected traversal rejection")
	}
}
