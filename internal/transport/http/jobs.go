package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/voice"
)

// loadOwnedJob fetches a job and enforces submitter-or-admin visibility.
func (s *Server) loadOwnedJob(c *gin.Context) (*job.Job, bool) {
	j, err := s.orchestrator.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return nil, false
	}
	if !isAdmin(c) && !j.VisibleTo(identity(c)) {
		// Foreign jobs read as absent.
		RespondError(c, http.StatusNotFound, "job not found", nil)
		return nil, false
	}
	return j, true
}

func (s *Server) handlePollJob(c *gin.Context) {
	j, ok := s.loadOwnedJob(c)
	if !ok {
		return
	}
	RespondSuccess(c, http.StatusOK, toJobView(j), "")
}

// handleJobResult returns the finished output: narration jobs stream their
// audio, clone jobs report the created voice.
func (s *Server) handleJobResult(c *gin.Context) {
	j, ok := s.loadOwnedJob(c)
	if !ok {
		return
	}

	ref, err := s.orchestrator.FetchResult(c.Request.Context(), j.ID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	switch j.Kind {
	case voice.JobKindNarrate:
		data, err := s.artifacts.Get(c.Request.Context(), ref)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		c.Data(http.StatusOK, audioContentType(data), data)
	case voice.JobKindClone:
		RespondSuccess(c, http.StatusOK, gin.H{"voice_id": ref}, "")
	default:
		RespondSuccess(c, http.StatusOK, gin.H{"result_ref": ref}, "")
	}
}

func (s *Server) handleCancelJob(c *gin.Context) {
	j, ok := s.loadOwnedJob(c)
	if !ok {
		return
	}
	if err := s.orchestrator.Cancel(c.Request.Context(), j.ID); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, nil, "job cancelled")
}
