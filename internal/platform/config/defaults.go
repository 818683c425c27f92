package config

import "time"

// DefaultConfig returns the fallback configuration used when no config file
// is present. The backend URL and API key still have to be provided through
// the environment or a config file before the agent can pair.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8000",
			WebsocketURL: "ws://localhost:8000/ws/commands",
			Timeout:      10 * time.Second,
		},
		Session: SessionConfig{
			HeartbeatInterval:   30 * time.Second,
			PairingPollInterval: 3 * time.Second,
		},
		Commands: CommandsConfig{
			PollInterval: 2500 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteStore{
				DSN: "data/signage-agent.db",
			},
		},
		Identity: IdentityConfig{
			DataDir: "data",
		},
		Web: WebConfig{
			Enabled: true,
			IP:      "127.0.0.1",
			Port:    8090,
		},
		Log: LogConfig{
			Level:  "info",
			Dir:    "data/logs",
			File:   "signage-agent.log",
			Format: "json",
		},
	}
}
