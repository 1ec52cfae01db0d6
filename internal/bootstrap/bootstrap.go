// Package bootstrap wires the platform and domain layers into a running
// service: an ordered init-step graph, then the HTTP lifecycle with
// graceful shutdown.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kani-tts-server/internal/domain/eventbus"
	"kani-tts-server/internal/domain/job"
	"kani-tts-server/internal/domain/ratelimit"
	"kani-tts-server/internal/domain/synth"
	"kani-tts-server/internal/domain/voice"
	"kani-tts-server/internal/domain/voice/artifact"
	"kani-tts-server/internal/domain/voice/meta"
	platformconfig "kani-tts-server/internal/platform/config"
	platformerrors "kani-tts-server/internal/platform/errors"
	platformlogging "kani-tts-server/internal/platform/logging"
	platformstorage "kani-tts-server/internal/platform/storage"
	httptransport "kani-tts-server/internal/transport/http"

	"gorm.io/gorm"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath string

	config       *platformconfig.Config
	logger       *platformlogging.Logger
	db           *gorm.DB
	bus          *eventbus.Bus
	metaStore    meta.Store
	artifacts    artifact.Store
	gateway      synth.Gateway
	limiter      ratelimit.Limiter
	jobStore     job.Store
	orchestrator *job.Orchestrator
	registry     *voice.Service
}

// Run starts the whole service lifecycle: configuration, dependencies, the
// HTTP server and graceful shutdown on SIGINT/SIGTERM.
func Run(ctx context.Context, configPath string) error {
	state := &appState{configPath: configPath}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}
	defer state.close()

	if err := state.registry.SeedPresets(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "seed presets", "preset seeding failed", err)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := state.orchestrator.Start(signalCtx); err != nil {
		return err
	}
	defer state.orchestrator.Stop()

	router, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "build router", "http router setup failed", err)
	}
	server := httptransport.NewServer(state.config, state.logger, state.registry,
		state.orchestrator, state.limiter, state.gateway, state.artifacts)
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", state.config.Server.IP, state.config.Server.Port),
		Handler: router.Engine,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		state.logger.InfoTag("Boot", "listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return platformerrors.Wrap(platformerrors.KindUnknown, "serve", "http server failed", err)
	}
	state.logger.InfoTag("Boot", "shutdown complete")
	return nil
}

func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.bus != nil {
		s.bus.Close()
	}
	if s.limiter != nil {
		_ = s.limiter.Close(ctx)
	}
	if s.jobStore != nil {
		_ = s.jobStore.Close()
	}
	if s.gateway != nil {
		_ = s.gateway.Close()
	}
	if s.artifacts != nil {
		_ = s.artifacts.Close(ctx)
	}
	if s.metaStore != nil {
		_ = s.metaStore.Close(ctx)
	}
	if s.logger != nil {
		s.logger.Close()
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if stderrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the bootstrap steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init",
			Title:     "Initialise metadata storage",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "artifact:init",
			Title:     "Initialise artifact storage",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   initArtifactStep,
		},
		{
			ID:        "synthesis:init",
			Title:     "Initialise synthesis gateway",
			DependsOn: []string{"logging:init"},
			Execute:   initGatewayStep,
		},
		{
			ID:        "ratelimit:init",
			Title:     "Initialise rate limiter",
			DependsOn: []string{"logging:init"},
			Execute:   initLimiterStep,
		},
		{
			ID:        "domain:init",
			Title:     "Initialise registry and orchestrator",
			DependsOn: []string{"storage:init", "artifact:init", "synthesis:init"},
			Execute:   initDomainStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	cfg, err := platformconfig.NewLoader(state.configPath).Load()
	if err != nil {
		return err
	}
	state.config = cfg
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	if state.config.Metadata.Driver == meta.DriverSQLite {
		db, err := platformstorage.Open(state.config.Metadata.DSN)
		if err != nil {
			return err
		}
		if err := platformstorage.Migrate(db); err != nil {
			return err
		}
		state.db = db
	}

	store, err := meta.New(meta.Config{
		Driver: state.config.Metadata.Driver,
		Redis:  metaRedis(state.config.Metadata.Redis),
	}, meta.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.metaStore = store
	return nil
}

func metaRedis(cfg platformconfig.RedisConfig) *meta.RedisConfig {
	if cfg.Addr == "" {
		return nil
	}
	return &meta.RedisConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
	}
}

func initArtifactStep(_ context.Context, state *appState) error {
	cfg := artifact.Config{
		Driver: state.config.Artifact.Driver,
		Path:   state.config.Artifact.Path,
	}
	if state.config.Artifact.NATS.URL != "" {
		cfg.NATS = &artifact.NATSConfig{
			URL:    state.config.Artifact.NATS.URL,
			Bucket: state.config.Artifact.NATS.Bucket,
		}
	}
	store, err := artifact.New(cfg)
	if err != nil {
		return err
	}
	state.artifacts = store
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	gateway, err := synth.New(synth.Config{
		Driver:  state.config.Synthesis.Driver,
		Presets: state.config.Synthesis.Presets,
		HTTP: synth.HTTPConfig{
			URL:               state.config.Synthesis.HTTP.URL,
			TimeoutSeconds:    state.config.Synthesis.HTTP.TimeoutSeconds,
			RequestsPerMinute: state.config.Synthesis.HTTP.RequestsPerMinute,
		},
		Edge: synth.EdgeConfig{
			Voice:  state.config.Synthesis.Edge.Voice,
			Format: state.config.Synthesis.Edge.Format,
		},
	}, state.logger)
	if err != nil {
		return err
	}
	state.gateway = gateway
	return nil
}

func initLimiterStep(_ context.Context, state *appState) error {
	rl := state.config.RateLimit
	cfg := ratelimit.Config{
		Driver:               rl.Driver,
		FailOpen:             rl.FailOpen,
		GlobalPerMinute:      rl.GlobalPerMinute,
		TTSPerMinute:         rl.TTSPerMinute,
		ClonePerMinute:       rl.ClonePerMinute,
		ClonePerSourceHourly: rl.ClonePerSourceHourly,
	}
	if rl.Redis.Addr != "" {
		cfg.Redis = &ratelimit.RedisConfig{
			Addr:     rl.Redis.Addr,
			Username: rl.Redis.Username,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
			Prefix:   rl.Redis.Prefix,
		}
	}
	limiter, err := ratelimit.New(cfg, state.logger)
	if err != nil {
		return err
	}
	state.limiter = limiter
	return nil
}

func initDomainStep(_ context.Context, state *appState) error {
	cfg := state.config

	state.bus = eventbus.New(state.logger)
	state.registry = voice.NewService(voice.Config{
		CloneMin: time.Duration(cfg.Clone.MinSeconds * float64(time.Second)),
		CloneMax: time.Duration(cfg.Clone.MaxSeconds * float64(time.Second)),
		Presets:  cfg.Synthesis.Presets,
	}, state.metaStore, state.artifacts, state.gateway, state.bus, state.logger)

	jobDriver := job.DriverMemory
	if cfg.Metadata.Driver == meta.DriverSQLite {
		jobDriver = job.DriverSQLite
	}
	store, err := job.NewStore(jobDriver, job.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.jobStore = store

	state.orchestrator = job.NewOrchestrator(job.Config{
		Mode:          cfg.Jobs.Mode,
		Workers:       cfg.Jobs.Workers,
		StaleAfter:    cfg.Jobs.StaleAfter,
		Heartbeat:     cfg.Jobs.Heartbeat,
		Retention:     cfg.Jobs.Retention,
		SweepInterval: cfg.Jobs.SweepInterval,
	}, store, state.logger)

	voice.NewExecutors(
		state.registry,
		state.gateway,
		state.artifacts,
		voice.NarrateDefaults{
			MaxTotalChars:   cfg.Narrate.MaxTotalChars,
			MaxChunks:       cfg.Narrate.MaxChunks,
			DefaultMaxChars: cfg.Narrate.DefaultMaxChars,
		},
		synth.Params{
			Temperature:       cfg.Synthesis.Params.Temperature,
			TopP:              cfg.Synthesis.Params.TopP,
			RepetitionPenalty: cfg.Synthesis.Params.RepetitionPenalty,
		},
	).Register(state.orchestrator)

	return nil
}
