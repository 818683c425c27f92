package model

import (
	"encoding/json"
	"time"
)

// Status tracks a command through its lifecycle on the backend.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank orders statuses so acknowledgements can only move forward.
var rank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Before reports whether s precedes other in the lifecycle. Equal or
// unknown statuses are not before anything.
func (s Status) Before(other Status) bool {
	a, okA := rank[s]
	b, okB := rank[other]
	return okA && okB && a < b
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Well-known command kinds the backend issues to signage devices.
const (
	KindPreviewContent = "preview-content"
	KindScreenShare    = "screen-share"
	KindSyncStatus     = "sync-status"
	KindLogout         = "logout"
)

// Command is a unit of remote work addressed to this device.
type Command struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	Kind      string          `json:"kind"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ConnectionStatus describes the push channel's health.
type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
)

// Logger is the minimal logging contract required by the command domain.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}
