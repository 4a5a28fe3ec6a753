package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.TargetHost)
	assert.Equal(t, 32767, cfg.TargetPort)
	assert.Equal(t, "127.0.0.1:32767", cfg.TargetAddr())
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout)
	assert.Equal(t, "none", cfg.ArchiveMode)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TARGET_HOST", "10.0.0.5")
	t.Setenv("TARGET_PORT", "4040")
	t.Setenv("CHUNK_SIZE", "4096")
	t.Setenv("DIAL_TIMEOUT", "2s")
	t.Setenv("PAYLOAD_HEX", "80007b")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:4040", cfg.TargetAddr())
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, "80007b", cfg.PayloadHex)
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
}

func TestLoadConfig_BadValues(t *testing.T) {
	t.Setenv("TARGET_PORT", "not-a-port")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port too large", func(c *Config) { c.TargetPort = 70000 }, "TARGET_PORT"},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, "CHUNK_SIZE"},
		{"bad archive mode", func(c *Config) { c.ArchiveMode = "s3" }, "ARCHIVE_MODE"},
		{"postgres mode without url", func(c *Config) { c.ArchiveMode = "postgres" }, "POSTGRES_URL"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
