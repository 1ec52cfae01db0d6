package httptransport

import (
	"time"

	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/ratelimit"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/voice"
	"kani-tts-server/internal/domain/voice/aggregate"
	"kani-tts-server/internal/domain/voice/artifact"
	"kani-tts-server/internal/platform/config"
	"kani-tts-server/internal/platform/logging"
)

// Server binds the domain services to the HTTP routes.
type Server struct {
	cfg          *config.Config
	logger       *logging.Logger
	registry     *voice.Service
	orchestrator *job.Orchestrator
	limiter      ratelimit.Limiter
	gateway      synth.Gateway
	artifacts    artifact.Store
	startedAt    time.Time
}

// NewServer wires the handler set.
func NewServer(cfg *config.Config, logger *logging.Logger, registry *voice.Service,
	orchestrator *job.Orchestrator, limiter ratelimit.Limiter,
	gateway synth.Gateway, artifacts artifact.Store) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		orchestrator: orchestrator,
		limiter:      limiter,
		gateway:      gateway,
		artifacts:    artifacts,
		startedAt:    time.Now(),
	}
}

// RegisterRoutes attaches every route to the router groups.
func (s *Server) RegisterRoutes(r *Router) {
	r.Engine.GET("/healthz", s.handleHealth)
	r.Engine.GET("/readyz", s.handleReady)

	r.Secured.GET("/limits", s.handleLimits)

	voices := r.Secured.Group("/voices")
	{
		voices.POST("/clone", RateLimit(s.limiter, ratelimit.ClassClone), s.handleClone)
		voices.GET("", s.handleListVoices)
		voices.GET("/:id", s.handleGetVoice)
		voices.PATCH("/:id", s.handleUpdateVoice)
		voices.DELETE("/:id", s.handleDeleteVoice)
	}

	r.Secured.POST("/tts", RateLimit(s.limiter, ratelimit.ClassTTS), s.handleTTS)
	r.Secured.POST("/narrate", RateLimit(s.limiter, ratelimit.ClassTTS), s.handleNarrate)

	jobs := r.Secured.Group("/jobs")
	{
		jobs.GET("/:id", s.handlePollJob)
		jobs.GET("/:id/result", s.handleJobResult)
		jobs.DELETE("/:id", s.handleCancelJob)
	}

	r.Admin.POST("/voices/:id/takedown", s.handleTakeDown)
	r.Admin.POST("/voices/:id/restore", s.handleRestore)
	r.Admin.GET("/system", s.handleSystem)
}

// voiceView is the wire form of a registry voice.
type voiceView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ConsentScope string `json:"consent_scope"`
	Status       string `json:"status"`
	SourceKind   string `json:"source_kind"`
	Owner        string `json:"owner,omitempty"`
	Faction      string `json:"faction,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toVoiceView(v aggregate.Voice) voiceView {
	view := voiceView{
		ID:           v.ID,
		Name:         v.Name,
		ConsentScope: string(v.ConsentScope),
		Status:       string(v.Status),
		SourceKind:   string(v.SourceKind),
		Faction:      v.Faction,
		CreatedAt:    v.CreatedAt.UTC().Format(time.RFC3339),
	}
	if v.OwnerID != nil {
		view.Owner = *v.OwnerID
	}
	return view
}

// jobView is the wire form of a job.
type jobView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	ResultRef string `json:"result_ref,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toJobView(j *job.Job) jobView {
	view := jobView{
		ID:        j.ID,
		Kind:      j.Kind,
		State:     string(j.State),
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.ResultRef != nil {
		view.ResultRef = *j.ResultRef
	}
	if j.ErrorDetail != nil {
		view.Error = *j.ErrorDetail
	}
	return view
}
