package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 1280, cfg.Recording.Width)
	assert.Equal(t, 720, cfg.Recording.Height)
	assert.Equal(t, 30, cfg.Recording.FPS)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.WebRTC.ICEServers)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Signal.Address, cfg.Signal.Address)
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
signal:
  address: ":9001"
  ping_interval: 15s
recording:
  width: 640
  height: 480
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Signal.Address)
	assert.Equal(t, 15*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 640, cfg.Recording.Width)
	assert.Equal(t, 480, cfg.Recording.Height)
	// untouched fields keep defaults
	assert.Equal(t, 30, cfg.Recording.FPS)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VIDCALL_SIGNAL_ADDRESS", ":7777")
	t.Setenv("VIDCALL_LOG_LEVEL", "warn")
	t.Setenv("VIDCALL_TURN_URLS", "turn:turn.example.com:3478, turns:turn.example.com:5349")
	t.Setenv("VIDCALL_TURN_USERNAME", "alice")
	t.Setenv("VIDCALL_TURN_CREDENTIAL", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Signal.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)

	last := cfg.WebRTC.ICEServers[len(cfg.WebRTC.ICEServers)-1]
	assert.Equal(t, []string{"turn:turn.example.com:3478", "turns:turn.example.com:5349"}, last.URLs)
	assert.Equal(t, "alice", last.Username)
	assert.Equal(t, "s3cret", last.Credential)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.Signal.Address = "" }},
		{"zero ping interval", func(c *Config) { c.Signal.PingInterval = 0 }},
		{"zero fps", func(c *Config) { c.Recording.FPS = 0 }},
		{"bad channels", func(c *Config) { c.Recording.Channels = 3 }},
		{"auth required without secret", func(c *Config) {
			c.Auth.Required = true
			c.Auth.JWTSecret = ""
		}},
		{"rate limiting without burst", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.Burst = 0
		}},
		{"tracing sample rate out of range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
