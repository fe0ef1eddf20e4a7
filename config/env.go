package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seika-app/pomosync/src/realtime"
	"github.com/seika-app/pomosync/src/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POMOSYNC_"

// ApplyEnv overrides fields from POMOSYNC_* environment variables. Unset
// variables leave the field alone; malformed ones are reported.
func (c *ClientConfig) ApplyEnv() error {
	e := envReader{}
	e.strVar("SERVER_URL", &c.ServerURL)
	e.strVar("CREDENTIAL_PARAM", &c.CredentialParam)
	e.strVar("CREDENTIAL_KEY", &c.CredentialKey)
	e.durVar("RECONNECT_INTERVAL", &c.ReconnectInterval)
	e.intVar("MAX_RECONNECT_ATTEMPTS", &c.MaxReconnectAttempts)
	if v, ok := lookup("RECONNECT_BACKOFF"); ok {
		c.ReconnectBackoff = realtime.BackoffKind(strings.ToLower(v))
	}
	e.durVar("MAX_RECONNECT_DELAY", &c.MaxReconnectDelay)
	e.floatVar("RECONNECT_JITTER", &c.ReconnectJitter)
	e.boolVar("HEARTBEAT", &c.Heartbeat)
	e.durVar("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	e.durVar("HANDSHAKE_TIMEOUT", &c.HandshakeTimeout)
	e.durVar("WRITE_TIMEOUT", &c.WriteTimeout)
	e.boolVar("REJOIN_ON_RECONNECT", &c.RejoinOnReconnect)
	e.durVar("STALENESS_WINDOW", &c.StalenessWindow)
	e.durVar("SWEEP_INTERVAL", &c.SweepInterval)
	e.boolVar("AUTO_SYNC", &c.AutoSync)
	e.strVar("USER_ID", &c.UserID)
	e.strVar("USER_NAME", &c.UserName)
	e.strVar("ROOM_ID", &c.RoomID)
	e.strVar("STATUS_ADDR", &c.StatusAddr)
	e.strVar("STORE_BACKEND", &c.Store.Backend)
	e.strVar("STORE_PATH", &c.Store.Path)

	rc := &store.RedisConfig{
		Addr:     c.Store.RedisAddr,
		Password: c.Store.RedisPassword,
		DB:       c.Store.RedisDB,
		Prefix:   c.Store.RedisPrefix,
	}
	if err := store.ApplyRedisEnv(rc); err != nil {
		e.errs = append(e.errs, err.Error())
	}
	c.Store.RedisAddr = rc.Addr
	c.Store.RedisPassword = rc.Password
	c.Store.RedisDB = rc.DB
	c.Store.RedisPrefix = rc.Prefix

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(e.errs, "; "))
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

type envReader struct {
	errs []string
}

func (e *envReader) fail(name string, err error) {
	e.errs = append(e.errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
}

func (e *envReader) strVar(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) intVar(name string, dst *int) {
	if v, ok := lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) floatVar(name string, dst *float64) {
	if v, ok := lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolVar(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

// durVar accepts Go durations ("3s") or bare milliseconds ("3000").
func (e *envReader) durVar(name string, dst *time.Duration) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = d
}
