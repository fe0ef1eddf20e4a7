package realtime

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// BackoffKind selects the delay policy between reconnect attempts.
type BackoffKind string

const (
	// BackoffFixed waits ReconnectInterval before every attempt.
	BackoffFixed BackoffKind = "fixed"
	// BackoffExponential starts at ReconnectInterval and doubles up to
	// MaxReconnectDelay.
	BackoffExponential BackoffKind = "exponential"
)

// Options configures a Manager. Start from DefaultOptions: New replaces zero
// durations, counts and strings with their defaults, but booleans are taken
// as given, so a zero Options has RejoinOnReconnect off.
type Options struct {
	// ServerURL is the session endpoint. Default "ws://localhost:8000/ws/".
	ServerURL string
	// CredentialParam is the query parameter carrying the credential.
	// Default "token".
	CredentialParam string
	// UserID is sent with join_room/leave_room. Optional.
	UserID string

	// ReconnectInterval is the delay before a reconnect attempt. Default 3s.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts caps consecutive failed attempts. Default 5.
	MaxReconnectAttempts int
	// Backoff selects the delay policy. Default BackoffFixed.
	Backoff BackoffKind
	// MaxReconnectDelay bounds exponential backoff. Default 30s.
	MaxReconnectDelay time.Duration
	// ReconnectJitter randomizes exponential delays by this factor
	// (0 to 1). Default 0.
	ReconnectJitter float64

	// Heartbeat enables periodic ping frames. Default false.
	Heartbeat bool
	// HeartbeatInterval is the ping period. Default 30s.
	HeartbeatInterval time.Duration

	// DialTimeout bounds a single connection attempt. Default 10s.
	DialTimeout time.Duration
	// CredentialTimeout bounds credential reads and purges. Default 2s.
	CredentialTimeout time.Duration

	// RejoinOnReconnect re-sends join_room for the current room after a
	// reconnect unless the flushed queue already carried one. True in
	// DefaultOptions.
	RejoinOnReconnect bool

	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Metrics is optional.
	Metrics *Metrics
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ServerURL:            "ws://localhost:8000/ws/",
		CredentialParam:      "token",
		ReconnectInterval:    3 * time.Second,
		MaxReconnectAttempts: 5,
		Backoff:              BackoffFixed,
		MaxReconnectDelay:    30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		DialTimeout:          10 * time.Second,
		CredentialTimeout:    2 * time.Second,
		RejoinOnReconnect:    true,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ServerURL == "" {
		o.ServerURL = def.ServerURL
	}
	if o.CredentialParam == "" {
		o.CredentialParam = def.CredentialParam
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = def.ReconnectInterval
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if o.Backoff == "" {
		o.Backoff = def.Backoff
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = def.HeartbeatInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = def.DialTimeout
	}
	if o.CredentialTimeout <= 0 {
		o.CredentialTimeout = def.CredentialTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}
