package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "signage-agent-go/internal/platform/errors"
)

// DefaultPath is the config file the loader looks for when no explicit path
// is given.
const DefaultPath = ".config.yaml"

// Loader reads configuration from a YAML file with environment overrides.
type Loader struct {
	path      string
	useDotEnv bool
}

// NewLoader creates a loader reading from the default path.
func NewLoader() *Loader {
	return &Loader{
		path:      DefaultPath,
		useDotEnv: true,
	}
}

// WithPath overrides the configuration file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load merges defaults, the YAML file (when present) and environment
// variables, in that order of precedence.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			// No .env file; system environment alone is fine.
			_ = err
		}
	}

	cfg := DefaultConfig()
	path := ""

	raw, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, platformerrors.Wrap(
				platformerrors.KindConfig,
				"config.load",
				fmt.Sprintf("failed to parse %s", l.path),
				err,
			)
		}
		path = l.path
	case os.IsNotExist(err):
		// Fall through to defaults plus env.
	default:
		return nil, platformerrors.Wrap(
			platformerrors.KindConfig,
			"config.load",
			fmt.Sprintf("failed to read %s", l.path),
			err,
		)
	}

	applyEnv(cfg)

	if cfg.Backend.BaseURL == "" {
		return nil, platformerrors.New(
			platformerrors.KindConfig,
			"config.load",
			"backend base_url is required",
		)
	}

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnv overlays SIGNAGE_* environment variables on top of the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SIGNAGE_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("SIGNAGE_BACKEND_WS_URL"); v != "" {
		cfg.Backend.WebsocketURL = v
	}
	if v := os.Getenv("SIGNAGE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("SIGNAGE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SIGNAGE_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("SIGNAGE_DATA_DIR"); v != "" {
		cfg.Identity.DataDir = v
	}
	if v := os.Getenv("SIGNAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SIGNAGE_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("SIGNAGE_COMMAND_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Commands.PollInterval = d
		}
	}
}
