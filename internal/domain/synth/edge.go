package synth

import (
	"context"
	"time"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/logging"
)

// edgeGateway renders speech through the Edge TTS service. It only supports
// its own built-in voices: cloning and artifact-based synthesis are refused.
type edgeGateway struct {
	voice  string
	logger *logging.Logger
}

// NewEdge builds the Edge TTS gateway driver.
func NewEdge(cfg EdgeConfig, logger *logging.Logger) (Gateway, error) {
	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	return &edgeGateway{
		voice:  voice,
		logger: logger,
	}, nil
}

func (g *edgeGateway) Clone(context.Context, []byte) ([]byte, error) {
	return nil, errors.New(errors.KindUpstream, "synth.clone",
		"edge driver does not support voice cloning")
}

func (g *edgeGateway) Synthesize(ctx context.Context, text string, voice VoiceRef, _ Params) ([]byte, error) {
	const op = "synth.synthesize"

	if text == "" {
		return nil, errors.New(errors.KindInvalidInput, op, "empty text")
	}
	if len(voice.Artifact) > 0 {
		return nil, errors.New(errors.KindUpstream, op,
			"edge driver cannot synthesize with a cloned artifact")
	}

	name := voice.Preset
	if name == "" {
		name = g.voice
	}

	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(name))
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "create edge communicator", err)
	}

	start := time.Now()
	audio, err := communicate.Stream()
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "edge synthesis failed", err)
	}
	if g.logger != nil {
		g.logger.InfoTag("EdgeTTS", "synthesized %d chars in %v", len(text), time.Since(start))
	}
	return audio, nil
}

func (g *edgeGateway) Presets() []string {
	return []string{g.voice}
}

func (g *edgeGateway) Healthy(context.Context) error {
	return nil
}

func (g *edgeGateway) Close() error {
	return nil
}
