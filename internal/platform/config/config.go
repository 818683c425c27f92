package config

import (
	"time"
)

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Session  SessionConfig  `yaml:"session"`
	Commands CommandsConfig `yaml:"commands"`
	Store    StoreConfig    `yaml:"store"`
	Identity IdentityConfig `yaml:"identity"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

// BackendConfig describes how to reach the signage backend.
type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	WebsocketURL string        `yaml:"websocket_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SessionConfig tunes the authentication lifecycle.
type SessionConfig struct {
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	PairingPollInterval time.Duration `yaml:"pairing_poll_interval"`
}

// CommandsConfig tunes the command delivery channels.
type CommandsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StoreConfig selects and configures the session store driver.
type StoreConfig struct {
	Driver string           `yaml:"driver"`
	SQLite SQLiteStore      `yaml:"sqlite,omitempty"`
	Redis  RedisStoreConfig `yaml:"redis,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// IdentityConfig locates the persisted device identity.
type IdentityConfig struct {
	DataDir string `yaml:"data_dir"`
}

// WebConfig controls the local diagnostics API.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	IP      string `yaml:"ip"`
	Port    int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"log_level"`
	Dir    string `yaml:"log_dir"`
	File   string `yaml:"log_file"`
	Format string `yaml:"log_format"`
}
