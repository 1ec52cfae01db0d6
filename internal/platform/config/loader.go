package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kani-tts-server/internal/platform/errors"
)

// Loader reads configuration from a YAML file layered over DefaultConfig,
// with environment variables (optionally from a .env file) taking precedence
// for secrets and connection strings.
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader(path string) *Loader {
	return &Loader{
		path:      path,
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Load builds the effective configuration. A missing config file is not an
// error; the defaults plus environment apply.
func (l *Loader) Load() (*Config, error) {
	const op = "config.load"

	if l.useDotEnv {
		// Absent .env just means plain process environment.
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(errors.KindConfig, op, "read config file", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, op, "parse config file", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deployment-sensitive settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KANI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KANI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KANI_API_KEYS"); v != "" {
		keys := make([]string, 0)
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Auth.APIKeys = keys
	}
	if v := os.Getenv("KANI_ADMIN_KEY"); v != "" {
		cfg.Auth.AdminKey = v
	}
	if v := os.Getenv("KANI_METADATA_DSN"); v != "" {
		cfg.Metadata.DSN = v
	}
	if v := os.Getenv("KANI_REDIS_ADDR"); v != "" {
		cfg.Metadata.Redis.Addr = v
		cfg.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("KANI_REDIS_PASSWORD"); v != "" {
		cfg.Metadata.Redis.Password = v
		cfg.RateLimit.Redis.Password = v
	}
	if v := os.Getenv("KANI_NATS_URL"); v != "" {
		cfg.Artifact.NATS.URL = v
	}
	if v := os.Getenv("KANI_SYNTHESIS_URL"); v != "" {
		cfg.Synthesis.HTTP.URL = v
	}
}
