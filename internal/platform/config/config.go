package config

import (
	"time"

	"kani-tts-server/internal/platform/errors"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Artifact  ArtifactConfig  `yaml:"artifact"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Clone     CloneConfig     `yaml:"clone"`
	Narrate   NarrateConfig   `yaml:"narrate"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// AuthConfig carries the caller-identity keys. Identity scoping is enabled
// when at least one API key is configured.
type AuthConfig struct {
	APIKeys  []string `yaml:"api_keys"`
	AdminKey string   `yaml:"admin_key"`
	Require  bool     `yaml:"require_api_key"`
}

// RedisConfig captures connection options shared by the redis-backed drivers.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// MetadataConfig selects the voice/job metadata store backend.
type MetadataConfig struct {
	Driver string      `yaml:"driver"` // memory | sqlite | redis
	DSN    string      `yaml:"dsn"`
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// ArtifactConfig selects the voice artifact store backend.
type ArtifactConfig struct {
	Driver string     `yaml:"driver"` // local | nats
	Path   string     `yaml:"path"`
	NATS   NATSConfig `yaml:"nats,omitempty"`
}

type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// JobsConfig governs the orchestrator's execution mode and housekeeping.
type JobsConfig struct {
	Mode          string        `yaml:"mode"` // inline | pool
	Workers       int           `yaml:"workers"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig holds per-action-class quotas. A zero quota disables the
// corresponding limit.
type RateLimitConfig struct {
	Driver               string      `yaml:"driver"` // memory | redis
	FailOpen             bool        `yaml:"fail_open"`
	GlobalPerMinute      int         `yaml:"global_per_minute"`
	TTSPerMinute         int         `yaml:"tts_per_minute"`
	ClonePerMinute       int         `yaml:"clone_per_minute"`
	ClonePerSourceHourly int         `yaml:"clone_per_source_hourly"`
	Redis                RedisConfig `yaml:"redis,omitempty"`
}

// CloneConfig bounds the accepted clone sample duration.
type CloneConfig struct {
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// NarrateConfig bounds long-form narration input.
type NarrateConfig struct {
	MaxTotalChars   int `yaml:"max_total_chars"`
	MaxChunks       int `yaml:"max_chunks"`
	DefaultMaxChars int `yaml:"default_max_chars"`
}

// SynthesisConfig selects and tunes the synthesis engine driver.
type SynthesisConfig struct {
	Driver  string           `yaml:"driver"` // http | edge
	Presets []string         `yaml:"presets"`
	Params  SynthesisParams  `yaml:"params"`
	HTTP    HTTPEngineConfig `yaml:"http,omitempty"`
	Edge    EdgeEngineConfig `yaml:"edge,omitempty"`
}

type SynthesisParams struct {
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
}

type HTTPEngineConfig struct {
	URL               string `yaml:"url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type EdgeEngineConfig struct {
	Voice  string `yaml:"voice"`
	Format string `yaml:"format"`
}

// Validate rejects configurations the bootstrap cannot act on.
func (c *Config) Validate() error {
	const op = "config.validate"

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf(errors.KindConfig, op, "invalid server port %d", c.Server.Port)
	}
	switch c.Metadata.Driver {
	case "memory", "sqlite", "redis":
	default:
		return errors.Newf(errors.KindConfig, op, "unsupported metadata driver %q", c.Metadata.Driver)
	}
	switch c.Artifact.Driver {
	case "local", "nats":
	default:
		return errors.Newf(errors.KindConfig, op, "unsupported artifact driver %q", c.Artifact.Driver)
	}
	switch c.Jobs.Mode {
	case "inline", "pool":
	default:
		return errors.Newf(errors.KindConfig, op, "unsupported jobs mode %q", c.Jobs.Mode)
	}
	if c.Jobs.Mode == "pool" && c.Jobs.Workers <= 0 {
		return errors.New(errors.KindConfig, op, "pool mode requires at least one worker")
	}
	switch c.RateLimit.Driver {
	case "memory", "redis":
	default:
		return errors.Newf(errors.KindConfig, op, "unsupported rate limit driver %q", c.RateLimit.Driver)
	}
	if c.Clone.MinSeconds <= 0 || c.Clone.MaxSeconds <= c.Clone.MinSeconds {
		return errors.New(errors.KindConfig, op, "clone duration bounds must satisfy 0 < min < max")
	}
	switch c.Synthesis.Driver {
	case "http", "edge":
	default:
		return errors.Newf(errors.KindConfig, op, "unsupported synthesis driver %q", c.Synthesis.Driver)
	}
	if c.Synthesis.Driver == "http" && c.Synthesis.HTTP.URL == "" {
		return errors.New(errors.KindConfig, op, "http synthesis driver requires a url")
	}
	return nil
}
