// Package artifact provides durable storage for voice artifact bytes
// (speaker embeddings, rendered narration audio). Drivers: local filesystem
// and a NATS JetStream object store for multi-instance deployments.
package artifact

import "context"

// Store is the binary artifact contract. Keys are opaque slash-separated
// references handed out by the voice registry and job orchestrator.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Config describes the store selection parameters.
type Config struct {
	Driver string
	Path   string
	NATS   *NATSConfig
}

// NATSConfig holds the JetStream object store connection options.
type NATSConfig struct {
	URL    string
	Bucket string
}
