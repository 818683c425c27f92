// Package store persists the device session across process restarts. It is
// a small key-value layer: the credentials triple is written and cleared as
// one unit, and a transient logout sentinel suppresses session restore on
// the next start.
package store

import (
	"context"

	"signage-agent-go/internal/domain/session/model"
)

// Store defines the behaviour required by the session manager.
type Store interface {
	// SaveCredentials persists the full triple, replacing any prior value.
	SaveCredentials(ctx context.Context, creds model.Credentials) error
	// LoadCredentials returns ok=false when no complete triple is stored.
	LoadCredentials(ctx context.Context) (model.Credentials, bool, error)
	// ClearCredentials removes every credential key.
	ClearCredentials(ctx context.Context) error

	SetLogoutSentinel(ctx context.Context) error
	HasLogoutSentinel(ctx context.Context) (bool, error)
	ClearLogoutSentinel(ctx context.Context) error

	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Keys used by the persistent drivers. Exported for tests that need to
// simulate partially-written state.
const (
	KeyUsername       = "credentials.username"
	KeyPassword       = "credentials.password"
	KeyScreenName     = "credentials.screenName"
	KeyLogoutSentinel = "session.justLoggedOut"
)

// Config describes the driver selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
