package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
url: ws://localhost:8080/ws
token: abc
key_hex: ` + testKeyHex + `
reconnect:
  step: 2s
  max_attempts: 3
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", cfg.URL)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.Step)
	require.NotNil(t, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3, *cfg.Reconnect.MaxAttempts)
	assert.Len(t, cfg.TransportOptions(), 1)

	c, err := cfg.Cipher()
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.TransportOptions())

	_, err = cfg.Cipher()
	assert.Error(t, err)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", "uri: ws://x\n", "failed to parse config"},
		{"bad duration", "reconnect:\n  step: soon\n", "failed to parse config"},
		{"negative step", "reconnect:\n  step: -1s\n", "reconnect.step"},
		{"negative attempts", "reconnect:\n  max_attempts: -2\n", "reconnect.max_attempts"},
		{"log level", "log_level: loud\n", "unknown log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvURL, "ws://env/ws")
	t.Setenv(EnvToken, "env-token")

	path := filepath.Join(t.TempDir(), "rostersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: ws://file/ws\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://file/ws", cfg.URL, "file values win over the environment")
	assert.Equal(t, "env-token", cfg.Token)
	assert.Empty(t, cfg.KeyHex)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "ws://env/ws", cfg.URL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfig_Logger(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &Config{LogLevel: "warn"}

	logger := cfg.Logger(buf, false)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger = cfg.Logger(buf, true)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug), "verbose forces debug")
}
