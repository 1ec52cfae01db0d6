package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"kani-tts-server/internal/domain/audio"
	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/text"
	"kani-tts-server/internal/domain/voice/artifact"
	"kani-tts-server/internal/platform/errors"
)

// Job kinds handled by the registry's executors.
const (
	JobKindClone   = "clone"
	JobKindNarrate = "narrate"
)

// NarrateDefaults bounds long-form narration.
type NarrateDefaults struct {
	MaxTotalChars   int
	MaxChunks       int
	DefaultMaxChars int
}

// ClonePayload is the queued form of an asynchronous clone request. The
// sample travels base64-encoded inside the job payload.
type ClonePayload struct {
	Name         string `json:"name"`
	ConsentScope string `json:"consent_scope,omitempty"`
	Faction      string `json:"faction,omitempty"`
	SampleB64    string `json:"sample_b64"`
}

// NarratePayload is the queued form of a narration request.
type NarratePayload struct {
	VoiceID  string        `json:"voice_id"`
	Text     string        `json:"text"`
	Strategy string        `json:"strategy,omitempty"`
	MaxChars int           `json:"max_chars,omitempty"`
	Params   *synth.Params `json:"params,omitempty"`
}

// Executors adapts registry operations to the job contract.
type Executors struct {
	registry  *Service
	gateway   synth.Gateway
	artifacts artifact.Store
	narrate   NarrateDefaults
	params    synth.Params
}

// NewExecutors builds the executor set.
func NewExecutors(registry *Service, gateway synth.Gateway, artifacts artifact.Store,
	narrate NarrateDefaults, params synth.Params) *Executors {
	return &Executors{
		registry:  registry,
		gateway:   gateway,
		artifacts: artifacts,
		narrate:   narrate,
		params:    params,
	}
}

// Register binds both executors to the orchestrator.
func (e *Executors) Register(o *job.Orchestrator) {
	o.RegisterExecutor(JobKindClone, e.runClone)
	o.RegisterExecutor(JobKindNarrate, e.runNarrate)
}

// runClone creates the voice and reports its identifier as the result.
func (e *Executors) runClone(ctx context.Context, j *job.Job) (string, error) {
	const op = "executor.clone"

	var payload ClonePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return "", errors.Wrap(errors.KindInvalidInput, op, "decode clone payload", err)
	}
	sample, err := base64.StdEncoding.DecodeString(payload.SampleB64)
	if err != nil {
		return "", errors.Wrap(errors.KindInvalidInput, op, "decode clone sample", err)
	}

	v, err := e.registry.CreateFromClone(ctx, j.SubmittedBy, CloneRequest{
		Name:         payload.Name,
		ConsentScope: payload.ConsentScope,
		Faction:      payload.Faction,
		Sample:       sample,
	})
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// runNarrate chunks the text, renders every segment in order against one
// resolved voice and publishes the joined audio as the job result.
func (e *Executors) runNarrate(ctx context.Context, j *job.Job) (string, error) {
	const op = "executor.narrate"

	var payload NarratePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return "", errors.Wrap(errors.KindInvalidInput, op, "decode narrate payload", err)
	}

	strategy, err := text.ParseStrategy(payload.Strategy)
	if err != nil {
		return "", err
	}
	maxChars := payload.MaxChars
	if maxChars == 0 {
		maxChars = e.narrate.DefaultMaxChars
	}
	segments, err := text.Split(payload.Text, text.Options{
		Strategy:      strategy,
		MaxChars:      maxChars,
		MaxChunks:     e.narrate.MaxChunks,
		MaxTotalChars: e.narrate.MaxTotalChars,
	})
	if err != nil {
		return "", err
	}

	// The voice is resolved once: a take-down mid-job does not splice
	// voices inside one narration.
	ref, err := e.registry.Resolve(ctx, j.SubmittedBy, false, payload.VoiceID)
	if err != nil {
		return "", err
	}
	params := e.params
	if payload.Params != nil {
		params = *payload.Params
	}

	rendered := make([][]byte, 0, len(segments))
	for _, segment := range segments {
		data, err := e.gateway.Synthesize(ctx, segment, ref, params)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, data)
	}

	audioBytes, err := joinSegments(rendered)
	if err != nil {
		return "", err
	}
	resultRef := fmt.Sprintf("narrate/%s.wav", j.ID)
	if err := e.artifacts.Put(ctx, resultRef, audioBytes); err != nil {
		return "", err
	}
	return resultRef, nil
}

// joinSegments merges rendered audio. WAV segments are re-encoded into one
// stream; MP3 frames concatenate as-is.
func joinSegments(segments [][]byte) ([]byte, error) {
	if len(segments) == 1 {
		return segments[0], nil
	}
	info, err := audio.Probe(segments[0])
	if err != nil {
		return nil, err
	}
	if info.Container == "wav" {
		return audio.ConcatWAV(segments)
	}
	var out []byte
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out, nil
}
