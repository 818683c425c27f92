package model

import "time"

// State enumerates the authentication lifecycle states.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateLoggingOut      State = "logging_out"
)

// Credentials is the triple the backend issues on login or pairing. The
// three fields are persisted and cleared as one unit; a partial triple is
// treated as absent.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	ScreenName string `json:"screen_name"`
}

// Complete reports whether all three fields are present.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.ScreenName != ""
}

// StatusReport is one heartbeat. The backend authenticates the report by the
// embedded credentials, marks the screen online or offline, and uses Active
// to show whether content is actually rendering.
type StatusReport struct {
	Credentials Credentials
	Online      bool
	Active      bool
}

// PairingStatus is the backend's verdict on an outstanding pairing code.
type PairingStatus string

const (
	PairingPending       PairingStatus = "pending"
	PairingAuthenticated PairingStatus = "authenticated"
	PairingExpired       PairingStatus = "expired"
)

// PairingCode is a short-lived single-use code a companion web client claims
// to inject credentials into this device.
type PairingCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired checks the code against the local clock. The local verdict wins
// over a stale backend poll response.
func (p PairingCode) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// DeviceSession is the authoritative record of who this device is logged in
// as. It is owned and mutated exclusively by the session manager; everything
// else receives read-only snapshots.
// Invariant: IsAuthenticated implies a complete credentials triple and a
// nil AuthCode; a non-nil AuthCode implies IsAuthenticated is false.
type DeviceSession struct {
	DeviceID        string       `json:"device_id"`
	Credentials     Credentials  `json:"-"`
	IsAuthenticated bool         `json:"is_authenticated"`
	AuthCode        *PairingCode `json:"auth_code,omitempty"`
}

// Logger is the minimal logging contract required by the session domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
