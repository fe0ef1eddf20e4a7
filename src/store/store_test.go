package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyCredential, "abc"))
	v, err := s.Get(ctx, KeyCredential)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Set(ctx, KeyCredential, "def"))
	v, err = s.Get(ctx, KeyCredential)
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, KeyCredential))
	_, err = s.Get(ctx, KeyCredential)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete(ctx, KeyCredential))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "store.json")))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path).Set(ctx, KeyTimerSettings, `{"pomodoroMinutes":50}`))

	v, err := NewFileStore(path).Get(ctx, KeyTimerSettings)
	require.NoError(t, err)
	assert.Equal(t, `{"pomodoroMinutes":50}`, v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background(), KeyCredential)
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	creds := Credentials{Store: s}

	_, err := creds.Credential(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyCredential, "   "))
	_, err = creds.Credential(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "blank credential counts as absent")

	require.NoError(t, s.Set(ctx, KeyCredential, "tok"))
	v, err := creds.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	require.NoError(t, creds.PurgeCredential(ctx))
	_, err = s.Get(ctx, KeyCredential)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialsCustomKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "authToken", "tok"))

	v, err := Credentials{Store: s, Key: "authToken"}.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Backend: "file", Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(Options{Backend: "file"})
	assert.Error(t, err)

	s, err = Open(Options{Backend: "redis", Redis: DefaultRedisConfig()})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "etcd"})
	assert.Error(t, err)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "pomosync:", cfg.Prefix)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_KEY_PREFIX", "test:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB) // falls back to default
}

func TestApplyRedisEnvKeepsUnsetFields(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_KEY_PREFIX", "")
	t.Setenv("REDIS_DB", "x")

	cfg := &RedisConfig{Addr: "cache:6379", DB: 2, Prefix: "p:"}
	err := ApplyRedisEnv(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Equal(t, &RedisConfig{Addr: "cache:6379", DB: 2, Prefix: "p:"}, cfg)
}

func TestRedisStoreUnreachable(t *testing.T) {
	s := NewRedisStore(&RedisConfig{Addr: "127.0.0.1:1", Prefix: "x:"})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, s.Ping(ctx))

	_, err := s.Get(ctx, KeyCredential)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
