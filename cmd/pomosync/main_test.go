package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestFormatCommand(t *testing.T) {
	out, err := execute(t, "format", "1500")
	require.NoError(t, err)
	assert.Equal(t, "25:00\n", out)

	out, err = execute(t, "format", "3725")
	require.NoError(t, err)
	assert.Equal(t, "01:02:05\n", out)

	out, err = execute(t, "format", "24:59")
	require.NoError(t, err)
	assert.Equal(t, "1499\n", out)

	_, err = execute(t, "format", "-5")
	assert.Error(t, err)
}

func TestTokenCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	t.Setenv("POMOSYNC_STORE_BACKEND", "file")
	t.Setenv("POMOSYNC_STORE_PATH", path)

	out, err := execute(t, "token", "set", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "credential stored")

	creds := store.Credentials{Store: store.NewFileStore(path)}
	got, err := creds.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = execute(t, "token", "clear")
	require.NoError(t, err)
	_, err = creds.Credential(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	t.Setenv("POMOSYNC_STORE_BACKEND", "memory")
	_, err := execute(t, "run", "--mode", "nap")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", "warn")
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	_, err = newLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = newLogger(&buf, "console", "loud")
	assert.Error(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestAnonymousUserIDIsStable(t *testing.T) {
	st := store.NewMemoryStore()
	first := anonymousUserID(context.Background(), st, zerolog.Nop())
	second := anonymousUserID(context.Background(), st, zerolog.Nop())
	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}
