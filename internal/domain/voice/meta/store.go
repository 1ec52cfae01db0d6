// Package meta provides the durable voice metadata store behind the registry.
// Drivers: in-process memory, sqlite (gorm) and redis for multi-instance
// deployments.
package meta

import (
	"context"

	"kani-tts-server/internal/domain/voice/aggregate"
)

// Store is the metadata contract required by the voice registry. Get and
// Update operate on exact identifiers; visibility scoping is the registry's
// concern, not the store's.
type Store interface {
	Insert(ctx context.Context, v aggregate.Voice) error
	Get(ctx context.Context, voiceID string) (aggregate.Voice, error)
	// List returns all voices when owner is nil, otherwise the owner's own
	// voices plus every unowned voice. Ordered by creation time descending.
	List(ctx context.Context, owner *string) ([]aggregate.Voice, error)
	Update(ctx context.Context, v aggregate.Voice) error
	Delete(ctx context.Context, voiceID string) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options for the redis driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
