package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kani-tts-server/internal/domain/voice/aggregate"
	"kani-tts-server/internal/platform/errors"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

type redisVoice struct {
	ID           string    `json:"voice_id"`
	Name         string    `json:"name"`
	ConsentScope string    `json:"consent_scope"`
	Status       string    `json:"status"`
	SourceKind   string    `json:"source_kind"`
	OwnerID      *string   `json:"owner_id,omitempty"`
	Faction      string    `json:"faction,omitempty"`
	ArtifactRef  string    `json:"artifact_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRedis constructs a redis-backed metadata store for multi-instance
// deployments.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "voice:meta:"
	}

	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Insert(ctx context.Context, v aggregate.Voice) error {
	data, err := json.Marshal(toRedisVoice(v))
	if err != nil {
		return errors.Wrap(errors.KindStorage, "meta.insert", "encode voice", err)
	}
	if err := s.client.Set(ctx, s.key(v.ID), data, 0).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "meta.insert", "set voice key", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, voiceID string) (aggregate.Voice, error) {
	raw, err := s.client.Get(ctx, s.key(voiceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return aggregate.Voice{}, errors.Newf(errors.KindNotFound, "meta.get", "voice not found: %s", voiceID)
		}
		return aggregate.Voice{}, errors.Wrap(errors.KindStorage, "meta.get", "get voice key", err)
	}
	var rv redisVoice
	if err := json.Unmarshal(raw, &rv); err != nil {
		return aggregate.Voice{}, errors.Wrap(errors.KindStorage, "meta.get", "decode voice", err)
	}
	return fromRedisVoice(rv), nil
}

func (s *redisStore) List(ctx context.Context, owner *string) ([]aggregate.Voice, error) {
	var cursor uint64
	keys := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "meta.list", "scan voice keys", err)
		}
		keys = append(keys, res...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	voices := make([]aggregate.Voice, 0, len(keys))
	for _, key := range keys {
		v, err := s.Get(ctx, strings.TrimPrefix(key, s.prefix))
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				continue // deleted between scan and get
			}
			return nil, err
		}
		if owner != nil && v.OwnerID != nil && *v.OwnerID != *owner {
			continue
		}
		voices = append(voices, v)
	}

	sort.Slice(voices, func(i, j int) bool {
		return voices[i].CreatedAt.After(voices[j].CreatedAt)
	})
	return voices, nil
}

func (s *redisStore) Update(ctx context.Context, v aggregate.Voice) error {
	exists, err := s.client.Exists(ctx, s.key(v.ID)).Result()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "meta.update", "check voice key", err)
	}
	if exists == 0 {
		return errors.Newf(errors.KindNotFound, "meta.update", "voice not found: %s", v.ID)
	}
	return s.Insert(ctx, v)
}

func (s *redisStore) Delete(ctx context.Context, voiceID string) error {
	removed, err := s.client.Del(ctx, s.key(voiceID)).Result()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "meta.delete", "delete voice key", err)
	}
	if removed == 0 {
		return errors.Newf(errors.KindNotFound, "meta.delete", "voice not found: %s", voiceID)
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func toRedisVoice(v aggregate.Voice) redisVoice {
	return redisVoice{
		ID:           v.ID,
		Name:         v.Name,
		ConsentScope: string(v.ConsentScope),
		Status:       string(v.Status),
		SourceKind:   string(v.SourceKind),
		OwnerID:      v.OwnerID,
		Faction:      v.Faction,
		ArtifactRef:  v.ArtifactRef,
		CreatedAt:    v.CreatedAt,
	}
}

func fromRedisVoice(rv redisVoice) aggregate.Voice {
	return aggregate.Voice{
		ID:           rv.ID,
		Name:         rv.Name,
		ConsentScope: aggregate.ConsentScope(rv.ConsentScope),
		Status:       aggregate.Status(rv.Status),
		SourceKind:   aggregate.SourceKind(rv.SourceKind),
		OwnerID:      rv.OwnerID,
		Faction:      rv.Faction,
		ArtifactRef:  rv.ArtifactRef,
		CreatedAt:    rv.CreatedAt,
	}
}
