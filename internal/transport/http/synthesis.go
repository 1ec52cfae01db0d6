package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/voice"
)

type synthesisParams struct {
	Temperature       *float64 `json:"temperature"`
	TopP              *float64 `json:"top_p"`
	RepetitionPenalty *float64 `json:"repetition_penalty"`
}

// resolve overlays caller overrides onto the configured defaults.
func (p *synthesisParams) resolve(defaults synth.Params) synth.Params {
	out := defaults
	if p == nil {
		return out
	}
	if p.Temperature != nil {
		out.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		out.TopP = *p.TopP
	}
	if p.RepetitionPenalty != nil {
		out.RepetitionPenalty = *p.RepetitionPenalty
	}
	return out
}

func (s *Server) defaultParams() synth.Params {
	return synth.Params{
		Temperature:       s.cfg.Synthesis.Params.Temperature,
		TopP:              s.cfg.Synthesis.Params.TopP,
		RepetitionPenalty: s.cfg.Synthesis.Params.RepetitionPenalty,
	}
}

type ttsRequest struct {
	VoiceID string           `json:"voice_id"`
	Text    string           `json:"text"`
	Params  *synthesisParams `json:"params"`
}

// handleTTS renders one short text synchronously and streams the audio back.
func (s *Server) handleTTS(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed synthesis request", nil)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		RespondError(c, http.StatusBadRequest, "text is required", nil)
		return
	}
	if req.VoiceID == "" {
		RespondError(c, http.StatusBadRequest, "voice_id is required", nil)
		return
	}

	ref, err := s.registry.Resolve(c.Request.Context(), identity(c), isAdmin(c), req.VoiceID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	data, err := s.gateway.Synthesize(c.Request.Context(), req.Text, ref, req.Params.resolve(s.defaultParams()))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Data(http.StatusOK, audioContentType(data), data)
}

type narrateRequest struct {
	VoiceID  string           `json:"voice_id"`
	Text     string           `json:"text"`
	Strategy string           `json:"strategy"`
	MaxChars int              `json:"max_chars"`
	Params   *synthesisParams `json:"params"`
}

// handleNarrate queues a long-form narration job.
func (s *Server) handleNarrate(c *gin.Context) {
	var req narrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed narration request", nil)
		return
	}
	if req.VoiceID == "" {
		RespondError(c, http.StatusBadRequest, "voice_id is required", nil)
		return
	}

	payload := voice.NarratePayload{
		VoiceID:  req.VoiceID,
		Text:     req.Text,
		Strategy: req.Strategy,
		MaxChars: req.MaxChars,
	}
	if req.Params != nil {
		params := req.Params.resolve(s.defaultParams())
		payload.Params = &params
	}

	j, err := s.orchestrator.Submit(c.Request.Context(), voice.JobKindNarrate, identity(c), payload)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusAccepted, toJobView(j), "narration queued")
}

func audioContentType(data []byte) string {
	if len(data) >= 4 && string(data[:4]) == "RIFF" {
		return "audio/wav"
	}
	return "audio/mpeg"
}
