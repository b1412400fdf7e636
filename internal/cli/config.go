package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/transport"
)

// Environment fallbacks for values not set by flag or config file.
const (
	EnvURL    = "ROSTERSYNC_URL"
	EnvToken  = "ROSTERSYNC_TOKEN"
	EnvKey    = "ROSTERSYNC_KEY"
	EnvSecret = "ROSTERSYNC_SECRET"
)

// Config is the optional YAML configuration for client commands.
//
// Example:
//
//	url: ws://localhost:8080/ws
//	token: eyJhbGciOi...
//	key_hex: 8f3a...
//	reconnect:
//	  step: 5s
//	  max_attempts: 5
//	log_level: debug
type Config struct {
	URL       string          `yaml:"url"`
	Token     string          `yaml:"token"`
	KeyHex    string          `yaml:"key_hex"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	LogLevel  string          `yaml:"log_level"`
}

// ReconnectConfig overrides the socket backoff schedule.
type ReconnectConfig struct {
	Step        time.Duration `yaml:"step"`
	MaxAttempts *int          `yaml:"max_attempts"`
}

// LoadConfig reads the config file at path and fills unset values from the
// environment. An empty path yields a config built from the environment
// alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = ParseConfig(data)
		if err != nil {
			return nil, err
		}
	}
	cfg.URL = fallback(cfg.URL, EnvURL)
	cfg.Token = fallback(cfg.Token, EnvToken)
	cfg.KeyHex = fallback(cfg.KeyHex, EnvKey)
	return cfg, nil
}

// ParseConfig decodes YAML config bytes. Unknown fields are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Reconnect.Step < 0 {
		return nil, fmt.Errorf("reconnect.step must not be negative")
	}
	if cfg.Reconnect.MaxAttempts != nil && *cfg.Reconnect.MaxAttempts < 0 {
		return nil, fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func fallback(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

// Cipher builds the field cipher from KeyHex.
func (c *Config) Cipher() (*cipher.XChaCha, error) {
	if c.KeyHex == "" {
		return nil, fmt.Errorf("no field key: set --key, key_hex or %s", EnvKey)
	}
	return cipher.NewFromHex(c.KeyHex)
}

// TransportOptions converts the reconnect section to socket options.
func (c *Config) TransportOptions() []transport.Option {
	if c.Reconnect.Step == 0 && c.Reconnect.MaxAttempts == nil {
		return nil
	}
	attempts := -1 // keep the default
	if c.Reconnect.MaxAttempts != nil {
		attempts = *c.Reconnect.MaxAttempts
	}
	return []transport.Option{transport.WithBackoff(c.Reconnect.Step, attempts)}
}

// Logger builds a text logger on w. verbose forces debug level.
func (c *Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}

// loadCommandConfig loads the --config file and wraps failures as command
// errors.
func loadCommandConfig(opts *RootOptions) (*Config, error) {
	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}
