package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
// Every backend defaults to its embedded, single-instance driver.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 7862,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Metadata: MetadataConfig{
			Driver: "sqlite",
			DSN:    "data/voice_metadata.db",
		},
		Artifact: ArtifactConfig{
			Driver: "local",
			Path:   "data/voice_storage",
		},
		Jobs: JobsConfig{
			Mode:          "inline",
			Workers:       2,
			StaleAfter:    5 * time.Minute,
			Heartbeat:     15 * time.Second,
			Retention:     24 * time.Hour,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Driver:               "memory",
			FailOpen:             false,
			GlobalPerMinute:      60,
			TTSPerMinute:         30,
			ClonePerMinute:       10,
			ClonePerSourceHourly: 5,
		},
		Clone: CloneConfig{
			MinSeconds: 3.0,
			MaxSeconds: 120.0,
		},
		Narrate: NarrateConfig{
			MaxTotalChars:   5000,
			MaxChunks:       15,
			DefaultMaxChars: 500,
		},
		Synthesis: SynthesisConfig{
			Driver: "http",
			Presets: []string{
				"alba", "marius", "javert", "jean",
				"fantine", "cosette", "eponine", "azelma",
			},
			Params: SynthesisParams{
				Temperature:       0.65,
				TopP:              0.80,
				RepetitionPenalty: 1.15,
			},
			HTTP: HTTPEngineConfig{
				URL:            "http://127.0.0.1:8880",
				TimeoutSeconds: 120,
			},
			Edge: EdgeEngineConfig{
				Voice:  "en-US-AriaNeural",
				Format: "audio-24khz-48kbitrate-mono-mp3",
			},
		},
	}
}
