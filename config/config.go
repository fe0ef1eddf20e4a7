// Package config loads the client configuration from defaults, an optional
// YAML file, a .env file and POMOSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/seika-app/pomosync/src/realtime"
	"github.com/seika-app/pomosync/src/service"
	"github.com/seika-app/pomosync/src/store"
	"github.com/seika-app/pomosync/src/transport"
	"gopkg.in/yaml.v3"
)

// ClientConfig holds every client setting. Zero values are never relied on;
// DefaultConfig fills them all.
type ClientConfig struct {
	ServerURL       string `yaml:"server_url"`
	CredentialParam string `yaml:"credential_param"`
	CredentialKey   string `yaml:"credential_key"`

	ReconnectInterval    time.Duration        `yaml:"reconnect_interval"`
	MaxReconnectAttempts int                  `yaml:"max_reconnect_attempts"`
	ReconnectBackoff     realtime.BackoffKind `yaml:"reconnect_backoff"`
	MaxReconnectDelay    time.Duration        `yaml:"max_reconnect_delay"`
	ReconnectJitter      float64              `yaml:"reconnect_jitter"`

	Heartbeat         bool          `yaml:"heartbeat"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`

	RejoinOnReconnect bool `yaml:"rejoin_on_reconnect"`

	StalenessWindow time.Duration `yaml:"staleness_window"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	AutoSync        bool          `yaml:"auto_sync"`

	UserID   string `yaml:"user_id"`
	UserName string `yaml:"user_name"`
	RoomID   string `yaml:"room_id"`

	StatusAddr string `yaml:"status_addr"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	rt := realtime.DefaultOptions()
	tr := transport.DefaultConfig()
	sy := service.DefaultConfig()
	rd := store.DefaultRedisConfig()
	return &ClientConfig{
		ServerURL:            rt.ServerURL,
		CredentialParam:      rt.CredentialParam,
		CredentialKey:        store.KeyCredential,
		ReconnectInterval:    rt.ReconnectInterval,
		MaxReconnectAttempts: rt.MaxReconnectAttempts,
		ReconnectBackoff:     rt.Backoff,
		MaxReconnectDelay:    rt.MaxReconnectDelay,
		HeartbeatInterval:    rt.HeartbeatInterval,
		HandshakeTimeout:     tr.HandshakeTimeout,
		WriteTimeout:         tr.WriteTimeout,
		ReadBufferSize:       tr.ReadBufferSize,
		WriteBufferSize:      tr.WriteBufferSize,
		RejoinOnReconnect:    rt.RejoinOnReconnect,
		StalenessWindow:      sy.StalenessWindow,
		SweepInterval:        sy.SweepInterval,
		AutoSync:             sy.AutoSync,
		StatusAddr:           "127.0.0.1:7777",
		Store: StoreConfig{
			Backend:     store.BackendFile,
			Path:        defaultStorePath(),
			RedisAddr:   rd.Addr,
			RedisPrefix: rd.Prefix,
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "pomosync", "store.json")
}

// Load returns defaults overlaid with the YAML file at path. A missing
// file is not an error when path is empty.
func Load(path string) (*ClientConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when
// none are given. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate rejects settings the client cannot run with.
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	}
	if c.CredentialParam == "" {
		errs = append(errs, errors.New("credential_param is required"))
	}
	if c.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("reconnect_interval must be positive"))
	}
	if c.MaxReconnectAttempts <= 0 {
		errs = append(errs, errors.New("max_reconnect_attempts must be positive"))
	}
	switch c.ReconnectBackoff {
	case realtime.BackoffFixed, realtime.BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("unknown reconnect_backoff %q", c.ReconnectBackoff))
	}
	if c.ReconnectJitter < 0 || c.ReconnectJitter > 1 {
		errs = append(errs, errors.New("reconnect_jitter must be between 0 and 1"))
	}
	if c.Heartbeat && c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be positive"))
	}
	if c.StalenessWindow <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("staleness_window and sweep_interval must be positive"))
	}
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendRedis:
	case store.BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

// RealtimeOptions converts the config for realtime.New.
func (c *ClientConfig) RealtimeOptions() realtime.Options {
	return realtime.Options{
		ServerURL:            c.ServerURL,
		CredentialParam:      c.CredentialParam,
		UserID:               c.UserID,
		ReconnectInterval:    c.ReconnectInterval,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		Backoff:              c.ReconnectBackoff,
		MaxReconnectDelay:    c.MaxReconnectDelay,
		ReconnectJitter:      c.ReconnectJitter,
		Heartbeat:            c.Heartbeat,
		HeartbeatInterval:    c.HeartbeatInterval,
		DialTimeout:          c.HandshakeTimeout,
		RejoinOnReconnect:    c.RejoinOnReconnect,
	}
}

// TransportConfig converts the config for transport.NewDialer.
func (c *ClientConfig) TransportConfig() transport.Config {
	return transport.Config{
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		ReadBufferSize:   c.ReadBufferSize,
		WriteBufferSize:  c.WriteBufferSize,
	}
}

// SyncConfig converts the config for service.NewTimerSync. Callbacks and
// clock are left for the caller.
func (c *ClientConfig) SyncConfig() service.Config {
	return service.Config{
		UserID:          c.UserID,
		UserName:        c.UserName,
		AutoSync:        c.AutoSync,
		StalenessWindow: c.StalenessWindow,
		SweepInterval:   c.SweepInterval,
	}
}

// StoreOptions converts the config for store.Open.
func (c *ClientConfig) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Store.Backend,
		Path:    c.Store.Path,
		Redis: &store.RedisConfig{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
			Prefix:   c.Store.RedisPrefix,
		},
	}
}
