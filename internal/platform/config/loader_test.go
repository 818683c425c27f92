package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
backend:
  base_url: "https://backend.example.com"
  websocket_url: "wss://backend.example.com/ws/commands"
  api_key: "test-key"
session:
  heartbeat_interval: 20s
  pairing_poll_interval: 3s
commands:
  poll_interval: 2s
store:
  driver: "memory"
log:
  log_level: "debug"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithPath(configFile).WithDotEnv(false)
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	cfg := result.Config
	if cfg.Backend.BaseURL != "https://backend.example.com" {
		t.Errorf("unexpected backend url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.APIKey != "test-key" {
		t.Errorf("unexpected api key: %s", cfg.Backend.APIKey)
	}
	if cfg.Session.HeartbeatInterval != 20*time.Second {
		t.Errorf("unexpected heartbeat interval: %s", cfg.Session.HeartbeatInterval)
	}
	if cfg.Commands.PollInterval != 2*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.Commands.PollInterval)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("unexpected store driver: %s", cfg.Store.Driver)
	}
	if result.Path != configFile {
		t.Errorf("unexpected config path: %s", result.Path)
	}
}

func TestLoader_LoadMissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader().
		WithPath(filepath.Join(t.TempDir(), "missing.yaml")).
		WithDotEnv(false)

	result, err := loader.Load()
	if err != nil {
		t.Fatalf("expected defaults, got error: %v", err)
	}
	if result.Config.Session.PairingPollInterval != 3*time.Second {
		t.Errorf("unexpected default pairing poll interval: %s",
			result.Config.Session.PairingPollInterval)
	}
	if result.Path != "" {
		t.Errorf("expected empty path for defaults, got %s", result.Path)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("SIGNAGE_BACKEND_URL", "https://env.example.com")
	t.Setenv("SIGNAGE_STORE_DRIVER", "redis")
	t.Setenv("SIGNAGE_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("SIGNAGE_HEARTBEAT_INTERVAL", "45s")

	loader := NewLoader().
		WithPath(filepath.Join(t.TempDir(), "missing.yaml")).
		WithDotEnv(false)

	result, err := loader.Load()
	if err != nil {
		t.Fatalf("load with env overrides: %v", err)
	}

	cfg := result.Config
	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("env backend url not applied: %s", cfg.Backend.BaseURL)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("env store settings not applied: %+v", cfg.Store)
	}
	if cfg.Session.HeartbeatInterval != 45*time.Second {
		t.Errorf("env heartbeat interval not applied: %s", cfg.Session.HeartbeatInterval)
	}
}
