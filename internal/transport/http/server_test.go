package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kani-tts-server/internal/domain/eventbus"
	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/ratelimit"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/voice"
	"kani-tts-server/internal/domain/voice/artifact"
	"kani-tts-server/internal/domain/voice/meta"
	"kani-tts-server/internal/platform/config"
	"kani-tts-server/internal/platform/testutil"
)

type stubGateway struct {
	audio []byte
}

func (g *stubGateway) Clone(context.Context, []byte) ([]byte, error) {
	return []byte("embedding"), nil
}

func (g *stubGateway) Synthesize(context.Context, string, synth.VoiceRef, synth.Params) ([]byte, error) {
	return g.audio, nil
}

func (g *stubGateway) Presets() []string             { return []string{"alba"} }
func (g *stubGateway) Healthy(context.Context) error { return nil }
func (g *stubGateway) Close() error                  { return nil }

func newTestAPI(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Auth.AdminKey = "admin-secret"
	cfg.RateLimit.GlobalPerMinute = 1000
	cfg.RateLimit.TTSPerMinute = 1000
	cfg.RateLimit.ClonePerMinute = 1000
	cfg.RateLimit.ClonePerSourceHourly = 1000
	if mutate != nil {
		mutate(cfg)
	}

	logger := testutil.Logger(t)
	artifacts, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	gateway := &stubGateway{audio: testutil.WAV(t, 0.5, 16000)}
	bus := eventbus.New(logger)

	registry := voice.NewService(voice.Config{
		CloneMin: 3 * time.Second,
		CloneMax: 120 * time.Second,
		Presets:  cfg.Synthesis.Presets,
	}, meta.NewMemory(), artifacts, gateway, bus, logger)
	if err := registry.SeedPresets(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobStore, err := job.NewStore(job.DriverMemory, job.Dependencies{})
	if err != nil {
		t.Fatalf("job store: %v", err)
	}
	orchestrator := job.NewOrchestrator(job.Config{Mode: job.ModeInline}, jobStore, logger)
	voice.NewExecutors(registry, gateway, artifacts, voice.NarrateDefaults{
		MaxTotalChars:   cfg.Narrate.MaxTotalChars,
		MaxChunks:       cfg.Narrate.MaxChunks,
		DefaultMaxChars: cfg.Narrate.DefaultMaxChars,
	}, synth.Params{}).Register(orchestrator)

	limiter, err := ratelimit.New(ratelimit.Config{
		Driver:               ratelimit.DriverMemory,
		GlobalPerMinute:      cfg.RateLimit.GlobalPerMinute,
		TTSPerMinute:         cfg.RateLimit.TTSPerMinute,
		ClonePerMinute:       cfg.RateLimit.ClonePerMinute,
		ClonePerSourceHourly: cfg.RateLimit.ClonePerSourceHourly,
	}, logger)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}

	router, err := Build(Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	NewServer(cfg, logger, registry, orchestrator, limiter, gateway, artifacts).RegisterRoutes(router)

	srv := httptest.NewServer(router.Engine)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, headers map[string]string) (*http.Response, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope APIResponse
	if resp.Header.Get("Content-Type") == "application/json; charset=utf-8" {
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
	}
	return resp, envelope
}

func uploadClone(t *testing.T, base, name, apiKey string, sample []byte, query string) (*http.Response, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", name); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := w.CreateFormFile("sample", "sample.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(sample); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/voices/clone"+query, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var envelope APIResponse
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return resp, envelope
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestAPI(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz = %d", resp.StatusCode)
	}
}

func TestAPIKeyEnforcement(t *testing.T) {
	srv := newTestAPI(t, func(cfg *config.Config) {
		cfg.Auth.Require = true
		cfg.Auth.APIKeys = []string{"valid-key"}
	})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices", nil, map[string]string{"X-API-Key": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d", resp.StatusCode)
	}

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices", nil, map[string]string{"X-API-Key": "valid-key"})
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("valid key = %d, success %v", resp.StatusCode, envelope.Success)
	}
}

func TestAdminGate(t *testing.T) {
	srv := newTestAPI(t, nil)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/system", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no admin key = %d", resp.StatusCode)
	}

	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/system", nil,
		map[string]string{"X-Admin-Key": "admin-secret"})
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		t.Fatalf("admin key = %d", resp.StatusCode)
	}
}

func TestVoiceNotFoundMapsTo404(t *testing.T) {
	srv := newTestAPI(t, nil)
	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices/ghost", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Success {
		t.Fatalf("error envelope marked success")
	}
}

func TestRateLimitMapsTo429(t *testing.T) {
	srv := newTestAPI(t, func(cfg *config.Config) {
		cfg.RateLimit.TTSPerMinute = 1
	})

	body := map[string]interface{}{"voice_id": "alba", "text": "Hello."}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/tts", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first tts = %d", resp.StatusCode)
	}

	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/tts", body, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second tts = %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	if envelope.Success {
		t.Fatalf("error envelope marked success")
	}
}

func TestCloneListSynthesizeFlow(t *testing.T) {
	srv := newTestAPI(t, nil)
	sample := testutil.WAV(t, 5.0, 16000)

	resp, envelope := uploadClone(t, srv.URL, "hero", "alice-key", sample, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("clone = %d (%s)", resp.StatusCode, envelope.Message)
	}
	created, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("clone data = %T", envelope.Data)
	}
	voiceID, _ := created["id"].(string)
	if voiceID == "" {
		t.Fatalf("no voice id in %v", created)
	}

	resp, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices", nil,
		map[string]string{"X-API-Key": "alice-key"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	listed, ok := envelope.Data.([]interface{})
	if !ok || len(listed) == 0 {
		t.Fatalf("list data = %v", envelope.Data)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/tts",
		bytes.NewReader(mustJSON(t, map[string]interface{}{"voice_id": voiceID, "text": "Hi."})))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "alice-key")
	audioResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	defer audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Fatalf("tts = %d", audioResp.StatusCode)
	}
	if ct := audioResp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %s", ct)
	}
}

func TestNarrateJobFlow(t *testing.T) {
	srv := newTestAPI(t, nil)
	headers := map[string]string{"X-API-Key": "alice-key"}

	body := map[string]interface{}{"voice_id": "alba", "text": "One sentence. Another sentence."}
	resp, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/narrate", body, headers)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("narrate = %d (%s)", resp.StatusCode, envelope.Message)
	}
	data, _ := envelope.Data.(map[string]interface{})
	jobID, _ := data["id"].(string)
	if jobID == "" {
		t.Fatalf("no job id in %v", envelope.Data)
	}

	resp, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+jobID, nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll = %d", resp.StatusCode)
	}
	data, _ = envelope.Data.(map[string]interface{})
	if state, _ := data["state"].(string); state != "succeeded" {
		t.Fatalf("state = %v", data)
	}

	// Foreign identities cannot see the job.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+jobID, nil,
		map[string]string{"X-API-Key": "bob-key"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign poll = %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/jobs/"+jobID+"/result", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-API-Key", "alice-key")
	resultResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	defer resultResp.Body.Close()
	if resultResp.StatusCode != http.StatusOK {
		t.Fatalf("result = %d", resultResp.StatusCode)
	}
	if ct := resultResp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %s", ct)
	}

	// Terminal jobs cannot be cancelled.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/jobs/"+jobID, nil, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("cancel terminal = %d", resp.StatusCode)
	}
}

func TestTakeDownBlocksSynthesis(t *testing.T) {
	srv := newTestAPI(t, nil)
	sample := testutil.WAV(t, 5.0, 16000)

	_, envelope := uploadClone(t, srv.URL, "flagged", "alice-key", sample, "")
	created, _ := envelope.Data.(map[string]interface{})
	voiceID, _ := created["id"].(string)
	if voiceID == "" {
		t.Fatalf("no voice id")
	}

	resp, _ := doJSON(t, http.MethodPost,
		srv.URL+"/api/v1/admin/voices/"+voiceID+"/takedown", nil,
		map[string]string{"X-Admin-Key": "admin-secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("takedown = %d", resp.StatusCode)
	}

	body := map[string]interface{}{"voice_id": voiceID, "text": "Hello."}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/tts", body,
		map[string]string{"X-API-Key": "alice-key"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("tts on taken-down voice = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost,
		srv.URL+"/api/v1/admin/voices/"+voiceID+"/restore", nil,
		map[string]string{"X-Admin-Key": "admin-secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/tts", body,
		map[string]string{"X-API-Key": "alice-key"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tts after restore = %d", resp.StatusCode)
	}
}

func TestLimitsEndpoint(t *testing.T) {
	srv := newTestAPI(t, nil)
	resp, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/limits", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("limits = %d", resp.StatusCode)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("limits data = %T", envelope.Data)
	}
	if _, ok := data["tts_per_minute"]; !ok {
		t.Fatalf("limits payload = %v", data)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
