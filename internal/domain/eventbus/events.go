package eventbus

import "time"

// Event topics published by the agent domains.
const (
	// Session lifecycle events.
	EventSessionAuthenticated = "session:authenticated"
	EventSessionLoggedOut     = "session:logged_out"
	EventSessionPairingCode   = "session:pairing_code"

	// Command lifecycle events.
	EventCommandReceived  = "command:received"
	EventCommandCompleted = "command:completed"
	EventCommandFailed    = "command:failed"

	// Push channel health events.
	EventPushStatus = "push:status"
)

// SessionEventData describes a session lifecycle transition. Credentials
// never ride the bus; only the public screen name does.
type SessionEventData struct {
	DeviceID   string `json:"device_id"`
	ScreenName string `json:"screen_name,omitempty"`
}

// PairingEventData carries a freshly generated pairing code.
type PairingEventData struct {
	DeviceID  string    `json:"device_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CommandEventData describes a command lifecycle transition.
type CommandEventData struct {
	CommandID string `json:"command_id"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	Message   string `json:"message,omitempty"`
}

// PushStatusEventData reports a push channel health change.
type PushStatusEventData struct {
	Status string `json:"status"`
}
