package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/logging"
)

const (
	apiSynthesize = "/v1/synthesize"
	apiClone      = "/v1/clone"
	apiHealth     = "/health"
)

// httpGateway talks to a standalone speech-engine service over JSON. An
// optional client-side pacing limiter keeps this instance from flooding a
// shared engine.
type httpGateway struct {
	client  *http.Client
	baseURL string
	presets []string
	limiter *rate.Limiter
	logger  *logging.Logger
}

type synthesizeRequest struct {
	Text              string  `json:"text"`
	Preset            string  `json:"preset,omitempty"`
	Artifact          string  `json:"artifact,omitempty"` // base64 speaker artifact
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

type cloneRequest struct {
	Sample string `json:"sample"` // base64 audio sample
}

type cloneResponse struct {
	Artifact string `json:"artifact"` // base64 speaker artifact
}

type engineError struct {
	Detail string `json:"detail"`
}

// NewHTTP builds the JSON-over-HTTP gateway driver.
func NewHTTP(cfg HTTPConfig, presets []string, logger *logging.Logger) (Gateway, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http gateway requires a url")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &httpGateway{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.URL,
		presets: presets,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (g *httpGateway) pace(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *httpGateway) Clone(ctx context.Context, sample []byte) ([]byte, error) {
	const op = "synth.clone"

	if len(sample) == 0 {
		return nil, errors.New(errors.KindInvalidInput, op, "empty audio sample")
	}
	if err := g.pace(ctx); err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "pacing interrupted", err)
	}

	body, err := json.Marshal(cloneRequest{
		Sample: base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "encode clone request", err)
	}

	respBody, err := g.post(ctx, apiClone, body)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "engine clone call failed", err)
	}

	var resp cloneResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "decode clone response", err)
	}
	artifact, err := base64.StdEncoding.DecodeString(resp.Artifact)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "decode artifact bytes", err)
	}
	if len(artifact) == 0 {
		return nil, errors.New(errors.KindUpstream, op, "engine returned empty artifact")
	}
	return artifact, nil
}

func (g *httpGateway) Synthesize(ctx context.Context, text string, voice VoiceRef, params Params) ([]byte, error) {
	const op = "synth.synthesize"

	if text == "" {
		return nil, errors.New(errors.KindInvalidInput, op, "empty text")
	}
	if err := g.pace(ctx); err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "pacing interrupted", err)
	}

	req := synthesizeRequest{
		Text:              text,
		Preset:            voice.Preset,
		Temperature:       params.Temperature,
		TopP:              params.TopP,
		RepetitionPenalty: params.RepetitionPenalty,
	}
	if len(voice.Artifact) > 0 {
		req.Artifact = base64.StdEncoding.EncodeToString(voice.Artifact)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "encode synthesize request", err)
	}

	audio, err := g.post(ctx, apiSynthesize, body)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, op, "engine synthesize call failed", err)
	}
	if len(audio) == 0 {
		return nil, errors.New(errors.KindUpstream, op, "engine returned empty audio")
	}
	return audio, nil
}

func (g *httpGateway) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var engineErr engineError
		if json.Unmarshal(respBody, &engineErr) == nil && engineErr.Detail != "" {
			return nil, fmt.Errorf("engine error (%s): %s", resp.Status, engineErr.Detail)
		}
		return nil, fmt.Errorf("engine returned %s: %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

func (g *httpGateway) Presets() []string {
	out := make([]string, len(g.presets))
	copy(out, g.presets)
	return out
}

func (g *httpGateway) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+apiHealth, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindUpstream, "synth.health", "engine unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.KindUpstream, "synth.health", "engine health returned %s", resp.Status)
	}
	return nil
}

func (g *httpGateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
