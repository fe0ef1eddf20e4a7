// Package store persists small string values (credential, timer settings)
// under well-known keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Well-known keys.
const (
	KeyCredential    = "token"
	KeyTimerSettings = "timerSettings"
	KeyDailyStudy    = "dailyStudyTime"
	KeyUserID        = "userId"
)

// Store is a flat key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Redis   *RedisConfig
}

// Open builds the store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		if opts.Path == "" {
			return nil, errors.New("file store requires a path")
		}
		return NewFileStore(opts.Path), nil
	case BackendRedis:
		cfg := opts.Redis
		if cfg == nil {
			cfg = RedisConfigFromEnv()
		}
		return NewRedisStore(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Credentials exposes the credential key of a Store.
type Credentials struct {
	Store Store
	Key   string
}

// Credential returns the stored credential. ErrNotFound means none is set.
func (c Credentials) Credential(ctx context.Context) (string, error) {
	v, err := c.Store.Get(ctx, c.key())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// PurgeCredential removes the stored credential.
func (c Credentials) PurgeCredential(ctx context.Context) error {
	return c.Store.Delete(ctx, c.key())
}

func (c Credentials) key() string {
	if c.Key == "" {
		return KeyCredential
	}
	return c.Key
}
