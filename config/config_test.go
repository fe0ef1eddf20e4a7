package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seika-app/pomosync/src/realtime"
	"github.com/seika-app/pomosync/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ws://localhost:8000/ws/", cfg.ServerURL)
	assert.Equal(t, "token", cfg.CredentialParam)
	assert.Equal(t, store.KeyCredential, cfg.CredentialKey)
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, realtime.BackoffFixed, cfg.ReconnectBackoff)
	assert.False(t, cfg.Heartbeat)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.RejoinOnReconnect)
	assert.Equal(t, 30*time.Second, cfg.StalenessWindow)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, store.BackendFile, cfg.Store.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pomosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: wss://sync.example.com/ws/
reconnect_interval: 5s
max_reconnect_attempts: 8
reconnect_backoff: exponential
heartbeat: true
room_id: study
store:
  backend: memory
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://sync.example.com/ws/", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 8, cfg.MaxReconnectAttempts)
	assert.Equal(t, realtime.BackoffExponential, cfg.ReconnectBackoff)
	assert.True(t, cfg.Heartbeat)
	assert.Equal(t, "study", cfg.RoomID)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "token", cfg.CredentialParam, "unset keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ServerURL, cfg.ServerURL)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("POMOSYNC_SERVER_URL", "ws://10.0.0.2:9000/ws/")
	t.Setenv("POMOSYNC_RECONNECT_INTERVAL", "1500")
	t.Setenv("POMOSYNC_MAX_RECONNECT_DELAY", "1m")
	t.Setenv("POMOSYNC_MAX_RECONNECT_ATTEMPTS", "2")
	t.Setenv("POMOSYNC_RECONNECT_BACKOFF", "Exponential")
	t.Setenv("POMOSYNC_HEARTBEAT", "true")
	t.Setenv("POMOSYNC_USER_NAME", "ana")
	t.Setenv("POMOSYNC_STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "ws://10.0.0.2:9000/ws/", cfg.ServerURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReconnectInterval)
	assert.Equal(t, time.Minute, cfg.MaxReconnectDelay)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
	assert.Equal(t, realtime.BackoffExponential, cfg.ReconnectBackoff)
	assert.True(t, cfg.Heartbeat)
	assert.Equal(t, "ana", cfg.UserName)
	assert.Equal(t, store.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6380", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvReportsMalformedValues(t *testing.T) {
	t.Setenv("POMOSYNC_MAX_RECONNECT_ATTEMPTS", "many")
	t.Setenv("POMOSYNC_HEARTBEAT", "sometimes")
	t.Setenv("POMOSYNC_SWEEP_INTERVAL", "soon")
	t.Setenv("REDIS_DB", "primary")

	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POMOSYNC_MAX_RECONNECT_ATTEMPTS")
	assert.Contains(t, err.Error(), "POMOSYNC_HEARTBEAT")
	assert.Contains(t, err.Error(), "POMOSYNC_SWEEP_INTERVAL")
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 0, cfg.Store.RedisDB)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("POMOSYNC_ROOM_ID=from-dotenv\n"), 0o600))
	t.Setenv("POMOSYNC_ROOM_ID", "")
	require.NoError(t, os.Unsetenv("POMOSYNC_ROOM_ID"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("POMOSYNC_ROOM_ID"))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerURL = ""
	cfg.ReconnectBackoff = "linear"
	cfg.ReconnectJitter = 2
	cfg.Store.Backend = "sqlite"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_url")
	assert.Contains(t, err.Error(), "linear")
	assert.Contains(t, err.Error(), "reconnect_jitter")
	assert.Contains(t, err.Error(), "sqlite")
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserID = "u1"
	cfg.Heartbeat = true
	cfg.Store.Backend = store.BackendRedis
	cfg.Store.RedisAddr = "localhost:6390"

	opts := cfg.RealtimeOptions()
	assert.Equal(t, "u1", opts.UserID)
	assert.True(t, opts.Heartbeat)
	assert.Equal(t, cfg.HandshakeTimeout, opts.DialTimeout)

	assert.Equal(t, 1024, cfg.TransportConfig().ReadBufferSize)
	assert.Equal(t, 30*time.Second, cfg.SyncConfig().StalenessWindow)

	so := cfg.StoreOptions()
	assert.Equal(t, store.BackendRedis, so.Backend)
	require.NotNil(t, so.Redis)
	assert.Equal(t, "localhost:6390", so.Redis.Addr)
	assert.Equal(t, "pomosync:", so.Redis.Prefix)
}
