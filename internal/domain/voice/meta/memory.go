package meta

import (
	"context"
	"sort"
	"sync"

	"kani-tts-server/internal/domain/voice/aggregate"
	"kani-tts-server/internal/platform/errors"
)

type memoryStore struct {
	mu     sync.RWMutex
	voices map[string]aggregate.Voice
}

// NewMemory constructs the in-process metadata store used for single
// instance deployments and tests.
func NewMemory() Store {
	return &memoryStore{
		voices: make(map[string]aggregate.Voice),
	}
}

func (s *memoryStore) Insert(_ context.Context, v aggregate.Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voices[v.ID] = v
	return nil
}

func (s *memoryStore) Get(_ context.Context, voiceID string) (aggregate.Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voices[voiceID]
	if !ok {
		return aggregate.Voice{}, errors.Newf(errors.KindNotFound, "meta.get", "voice not found: %s", voiceID)
	}
	return v, nil
}

func (s *memoryStore) List(_ context.Context, owner *string) ([]aggregate.Voice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]aggregate.Voice, 0, len(s.voices))
	for _, v := range s.voices {
		if owner != nil && v.OwnerID != nil && *v.OwnerID != *owner {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, v aggregate.Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voices[v.ID]; !ok {
		return errors.Newf(errors.KindNotFound, "meta.update", "voice not found: %s", v.ID)
	}
	s.voices[v.ID] = v
	return nil
}

func (s *memoryStore) Delete(_ context.Context, voiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voices[voiceID]; !ok {
		return errors.Newf(errors.KindNotFound, "meta.delete", "voice not found: %s", voiceID)
	}
	delete(s.voices, voiceID)
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
