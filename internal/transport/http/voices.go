package httptransport

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/domain/voice"
)

// maxSampleBytes caps uploaded clone samples before any decoding happens.
const maxSampleBytes = 32 << 20

// handleClone accepts a multipart clone request. With async=true the work
// is queued and a job envelope comes back; otherwise the voice is created
// before the response.
func (s *Server) handleClone(c *gin.Context) {
	name := c.PostForm("name")
	consentScope := c.PostForm("consent_scope")
	faction := c.PostForm("faction")

	file, err := c.FormFile("sample")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "a sample file is required", nil)
		return
	}
	if file.Size > maxSampleBytes {
		RespondError(c, http.StatusBadRequest, "sample exceeds the upload limit", nil)
		return
	}
	src, err := file.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "cannot read the sample upload", nil)
		return
	}
	defer src.Close()
	sample, err := io.ReadAll(io.LimitReader(src, maxSampleBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "cannot read the sample upload", nil)
		return
	}
	if len(sample) > maxSampleBytes {
		RespondError(c, http.StatusBadRequest, "sample exceeds the upload limit", nil)
		return
	}

	if c.Query("async") == "true" {
		j, err := s.orchestrator.Submit(c.Request.Context(), voice.JobKindClone, identity(c), voice.ClonePayload{
			Name:         name,
			ConsentScope: consentScope,
			Faction:      faction,
			SampleB64:    base64.StdEncoding.EncodeToString(sample),
		})
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		RespondSuccess(c, http.StatusAccepted, toJobView(j), "clone queued")
		return
	}

	v, err := s.registry.CreateFromClone(c.Request.Context(), identity(c), voice.CloneRequest{
		Name:         name,
		ConsentScope: consentScope,
		Faction:      faction,
		Sample:       sample,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusCreated, toVoiceView(v), "voice created")
}

func (s *Server) handleListVoices(c *gin.Context) {
	voices, err := s.registry.List(c.Request.Context(), identity(c), isAdmin(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	views := make([]voiceView, 0, len(voices))
	for _, v := range voices {
		views = append(views, toVoiceView(v))
	}
	RespondSuccess(c, http.StatusOK, views, "")
}

func (s *Server) handleGetVoice(c *gin.Context) {
	v, err := s.registry.Get(c.Request.Context(), identity(c), isAdmin(c), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, toVoiceView(v), "")
}

type updateVoiceRequest struct {
	Name         *string `json:"name"`
	ConsentScope *string `json:"consent_scope"`
	Faction      *string `json:"faction"`
}

func (s *Server) handleUpdateVoice(c *gin.Context) {
	var req updateVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed update request", nil)
		return
	}
	v, err := s.registry.Update(c.Request.Context(), identity(c), isAdmin(c), c.Param("id"), voice.UpdateRequest{
		Name:         req.Name,
		ConsentScope: req.ConsentScope,
		Faction:      req.Faction,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, toVoiceView(v), "voice updated")
}

func (s *Server) handleDeleteVoice(c *gin.Context) {
	if err := s.registry.Delete(c.Request.Context(), identity(c), isAdmin(c), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "voice deleted")
}

func (s *Server) handleTakeDown(c *gin.Context) {
	if err := s.registry.TakeDown(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "voice taken down")
}

func (s *Server) handleRestore(c *gin.Context) {
	if err := s.registry.Restore(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "voice restored")
}
