// Package synth is the boundary to the speech engine. The gateway turns a
// clone sample into a voice artifact and renders text against a preset or
// cloned voice. Engine calls are slow, fallible and never retried here; a
// repeat costs real compute and may not be deterministic.
package synth

import "context"

// Params tunes a synthesis call.
type Params struct {
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// VoiceRef addresses the voice to synthesize with: either a preset name
// known to the engine or the artifact bytes of a cloned voice.
type VoiceRef struct {
	Preset   string
	Artifact []byte
}

// Gateway is the engine contract used by the registry and orchestrator.
type Gateway interface {
	// Clone extracts a speaker artifact from an audio sample.
	Clone(ctx context.Context, sample []byte) ([]byte, error)
	// Synthesize renders text to audio bytes (WAV or MP3 per driver).
	Synthesize(ctx context.Context, text string, voice VoiceRef, params Params) ([]byte, error)
	// Presets lists the voice names built into the engine.
	Presets() []string
	// Healthy reports whether the engine is reachable.
	Healthy(ctx context.Context) error
	Close() error
}

// Config selects and tunes the gateway driver.
type Config struct {
	Driver  string
	Presets []string
	HTTP    HTTPConfig
	Edge    EdgeConfig
}

type HTTPConfig struct {
	URL               string
	TimeoutSeconds    int
	RequestsPerMinute int
}

type EdgeConfig struct {
	Voice  string
	Format string
}
