package types

import "time"

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// ConnectionState is a point-in-time copy of the connection manager state.
type ConnectionState struct {
	Status             Status     `json:"status"`
	ConnectionAttempts int        `json:"connection_attempts"`
	LastConnectedAt    *time.Time `json:"last_connected_at,omitempty"`
	CurrentRoom        string     `json:"current_room,omitempty"`
	QueueLength        int        `json:"queue_length"`
	LastError          string     `json:"last_error,omitempty"`
}
