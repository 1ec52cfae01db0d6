// Package voice implements the registry: voice creation from clone samples,
// visibility-scoped reads, owner mutations and the admin take-down flow.
package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kani-tts-server/internal/domain/audio"
	"kani-tts-server/internal/domain/eventbus"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/voice/aggregate"
	"kani-tts-server/internal/domain/voice/artifact"
	"kani-tts-server/internal/domain/voice/meta"
	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/logging"
)

// Config bounds the registry's validation rules.
type Config struct {
	CloneMin time.Duration
	CloneMax time.Duration
	Presets  []string
}

// Service coordinates the metadata store, the artifact store and the
// synthesis engine. Mutations on one voice are serialized per identifier;
// the stores stay free of registry-level locking.
type Service struct {
	cfg       Config
	meta      meta.Store
	artifacts artifact.Store
	gateway   synth.Gateway
	bus       *eventbus.Bus
	logger    *logging.Logger

	locks keyedMutex
}

// NewService wires the registry.
func NewService(cfg Config, metaStore meta.Store, artifacts artifact.Store,
	gateway synth.Gateway, bus *eventbus.Bus, logger *logging.Logger) *Service {
	return &Service{
		cfg:       cfg,
		meta:      metaStore,
		artifacts: artifacts,
		gateway:   gateway,
		bus:       bus,
		logger:    logger,
	}
}

// CloneRequest is the input for CreateFromClone.
type CloneRequest struct {
	Name         string
	ConsentScope string
	Faction      string
	Sample       []byte
}

// CreateFromClone validates the sample, extracts a speaker artifact from
// the engine and registers the voice. The artifact write and the metadata
// insert either both land or neither does.
func (s *Service) CreateFromClone(ctx context.Context, identity string, req CloneRequest) (aggregate.Voice, error) {
	const op = "voice.clone"

	// The display name is optional; a nameless voice is addressed by ID only.
	name := strings.TrimSpace(req.Name)
	scope, err := aggregate.ParseConsentScope(req.ConsentScope)
	if err != nil {
		return aggregate.Voice{}, err
	}
	if len(req.Sample) == 0 {
		return aggregate.Voice{}, errors.New(errors.KindInvalidInput, op, "a clone sample is required")
	}

	info, err := audio.Probe(req.Sample)
	if err != nil {
		return aggregate.Voice{}, err
	}
	if info.Duration < s.cfg.CloneMin || info.Duration > s.cfg.CloneMax {
		return aggregate.Voice{}, errors.Newf(errors.KindInvalidInput, op,
			"clone sample must be between %.0fs and %.0fs, got %.1fs",
			s.cfg.CloneMin.Seconds(), s.cfg.CloneMax.Seconds(), info.Duration.Seconds())
	}

	artifactBytes, err := s.gateway.Clone(ctx, req.Sample)
	if err != nil {
		return aggregate.Voice{}, err
	}

	id := uuid.NewString()
	ref := fmt.Sprintf("voices/%s.bin", id)
	if err := s.artifacts.Put(ctx, ref, artifactBytes); err != nil {
		return aggregate.Voice{}, err
	}

	owner := identity
	v := aggregate.Voice{
		ID:           id,
		Name:         name,
		ConsentScope: scope,
		Status:       aggregate.StatusActive,
		SourceKind:   aggregate.SourceCloned,
		Faction:      req.Faction,
		ArtifactRef:  ref,
		CreatedAt:    time.Now(),
	}
	if owner != "" {
		v.OwnerID = &owner
	}
	if err := s.meta.Insert(ctx, v); err != nil {
		// Metadata is the source of truth; an orphaned artifact must not
		// survive a failed insert.
		if derr := s.artifacts.Delete(ctx, ref); derr != nil {
			s.logger.WarnTag("Registry", "rollback of artifact %s failed: %v", ref, derr)
		}
		return aggregate.Voice{}, err
	}

	s.bus.Publish(eventbus.TopicVoiceCreated, eventbus.VoiceEvent{VoiceID: id, Name: name, Actor: identity})
	return v, nil
}

// Get returns a voice the caller may see. Admins see everything.
func (s *Service) Get(ctx context.Context, identity string, admin bool, voiceID string) (aggregate.Voice, error) {
	v, err := s.meta.Get(ctx, voiceID)
	if err != nil {
		return aggregate.Voice{}, err
	}
	if !admin && !v.VisibleTo(identity) {
		// Hidden voices read as absent, not as forbidden.
		return aggregate.Voice{}, errors.New(errors.KindNotFound, "voice.get", "voice not found")
	}
	return v, nil
}

// List returns the voices visible to the caller, newest first.
func (s *Service) List(ctx context.Context, identity string, admin bool) ([]aggregate.Voice, error) {
	if admin {
		return s.meta.List(ctx, nil)
	}
	return s.meta.List(ctx, &identity)
}

// UpdateRequest carries the owner-editable fields; nil leaves a field alone.
type UpdateRequest struct {
	Name         *string
	ConsentScope *string
	Faction      *string
}

// Update applies owner edits. Presets have no owner and stay immutable
// for everyone but admins.
func (s *Service) Update(ctx context.Context, identity string, admin bool, voiceID string, req UpdateRequest) (aggregate.Voice, error) {
	const op = "voice.update"

	unlock := s.locks.lock(voiceID)
	defer unlock()

	v, err := s.meta.Get(ctx, voiceID)
	if err != nil {
		return aggregate.Voice{}, err
	}
	if !admin && !v.OwnedBy(identity) {
		return aggregate.Voice{}, errors.New(errors.KindForbidden, op, "only the owner may edit this voice")
	}

	if req.Name != nil {
		// An empty name clears the label; the voice stays addressable by ID.
		v.Name = strings.TrimSpace(*req.Name)
	}
	if req.ConsentScope != nil {
		scope, err := aggregate.ParseConsentScope(*req.ConsentScope)
		if err != nil {
			return aggregate.Voice{}, err
		}
		v.ConsentScope = scope
	}
	if req.Faction != nil {
		v.Faction = *req.Faction
	}

	if err := s.meta.Update(ctx, v); err != nil {
		return aggregate.Voice{}, err
	}
	return v, nil
}

// Delete removes a voice and its artifact. Owner only; presets are
// permanent.
func (s *Service) Delete(ctx context.Context, identity string, admin bool, voiceID string) error {
	const op = "voice.delete"

	unlock := s.locks.lock(voiceID)
	defer unlock()

	v, err := s.meta.Get(ctx, voiceID)
	if err != nil {
		return err
	}
	if v.IsPreset() {
		return errors.New(errors.KindForbidden, op, "preset voices cannot be deleted")
	}
	if !admin && !v.OwnedBy(identity) {
		return errors.New(errors.KindForbidden, op, "only the owner may delete this voice")
	}

	if err := s.meta.Delete(ctx, voiceID); err != nil {
		return err
	}
	if v.ArtifactRef != "" {
		if err := s.artifacts.Delete(ctx, v.ArtifactRef); err != nil {
			s.logger.WarnTag("Registry", "artifact %s not removed with voice %s: %v", v.ArtifactRef, voiceID, err)
		}
	}

	s.bus.Publish(eventbus.TopicVoiceDeleted, eventbus.VoiceEvent{VoiceID: voiceID, Name: v.Name, Actor: identity})
	return nil
}

// TakeDown disables a voice for synthesis while retaining its metadata and
// artifact, so a wrongly flagged voice can be restored intact.
func (s *Service) TakeDown(ctx context.Context, actor, voiceID string) error {
	const op = "voice.takedown"

	unlock := s.locks.lock(voiceID)
	defer unlock()

	v, err := s.meta.Get(ctx, voiceID)
	if err != nil {
		return err
	}
	if v.Status == aggregate.StatusTakenDown {
		return nil
	}
	v.Status = aggregate.StatusTakenDown
	if err := s.meta.Update(ctx, v); err != nil {
		return err
	}
	s.bus.Publish(eventbus.TopicVoiceTakenDown, eventbus.VoiceEvent{VoiceID: voiceID, Name: v.Name, Actor: actor})
	return nil
}

// Restore reverses a take-down.
func (s *Service) Restore(ctx context.Context, actor, voiceID string) error {
	unlock := s.locks.lock(voiceID)
	defer unlock()

	v, err := s.meta.Get(ctx, voiceID)
	if err != nil {
		return err
	}
	if v.Status == aggregate.StatusActive {
		return nil
	}
	v.Status = aggregate.StatusActive
	if err := s.meta.Update(ctx, v); err != nil {
		return err
	}
	s.bus.Publish(eventbus.TopicVoiceRestored, eventbus.VoiceEvent{VoiceID: voiceID, Name: v.Name, Actor: actor})
	return nil
}

// Resolve turns a voice identifier into an engine reference. Taken-down
// voices are unavailable for synthesis regardless of who asks.
func (s *Service) Resolve(ctx context.Context, identity string, admin bool, voiceID string) (synth.VoiceRef, error) {
	const op = "voice.resolve"

	v, err := s.Get(ctx, identity, admin, voiceID)
	if err != nil {
		return synth.VoiceRef{}, err
	}
	if v.Status == aggregate.StatusTakenDown {
		return synth.VoiceRef{}, errors.New(errors.KindVoiceUnavailable, op, "voice has been taken down")
	}
	if v.IsPreset() {
		return synth.VoiceRef{Preset: v.Name}, nil
	}

	data, err := s.artifacts.Get(ctx, v.ArtifactRef)
	if err != nil {
		return synth.VoiceRef{}, err
	}
	return synth.VoiceRef{Artifact: data}, nil
}

// SeedPresets registers the configured preset voices. Presets use their
// name as identifier, so reseeding on every boot is idempotent.
func (s *Service) SeedPresets(ctx context.Context) error {
	for _, name := range s.cfg.Presets {
		if _, err := s.meta.Get(ctx, name); err == nil {
			continue
		} else if !errors.IsKind(err, errors.KindNotFound) {
			return err
		}
		v := aggregate.Voice{
			ID:           name,
			Name:         name,
			ConsentScope: aggregate.ConsentCommercial,
			Status:       aggregate.StatusActive,
			SourceKind:   aggregate.SourcePreset,
			CreatedAt:    time.Now(),
		}
		if err := s.meta.Insert(ctx, v); err != nil {
			return err
		}
		s.logger.InfoTag("Registry", "seeded preset voice %s", name)
	}
	return nil
}

// keyedMutex hands out one mutex per voice identifier. Entries are
// refcounted and dropped once the last holder unlocks, so the map only
// holds identifiers with lockers in flight.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
