package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8765, cfg.ServerPort)
	assert.Equal(t, 5*time.Second, cfg.NetworkTimeout)
	assert.Equal(t, 10*time.Second, cfg.TransferAcceptTimeout)
	assert.Equal(t, 5, cfg.CallbackAttempts)
	assert.Equal(t, 1*time.Second, cfg.CallbackInitialBackoff)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaults(), cfg)
}

func TestLoadConfig_OverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yml")
	content := `
server_address: 10.0.0.5
server_port: 9999
network_timeout: 2s
callback_attempts: 3
log_level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.ServerAddress)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, 2*time.Second, cfg.NetworkTimeout)
	assert.Equal(t, 3, cfg.CallbackAttempts)
	assert.Equal(t, "DEBUG", cfg.LogLevel)

	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.TransferAcceptTimeout)
	assert.Equal(t, "10.0.0.5:9999", cfg.GetServerAddress())
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: [not a port"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero server port", func(c *Config) { c.ServerPort = 0 }},
		{"port out of range", func(c *Config) { c.ServerPort = 70000 }},
		{"bad discovery port", func(c *Config) { c.DiscoveryPort = -1 }},
		{"zero network timeout", func(c *Config) { c.NetworkTimeout = 0 }},
		{"zero accept timeout", func(c *Config) { c.TransferAcceptTimeout = 0 }},
		{"no callback attempts", func(c *Config) { c.CallbackAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DiscoveryPortIgnoredWhenDisabled(t *testing.T) {
	cfg := GetDefaults()
	cfg.DiscoveryEnabled = false
	cfg.DiscoveryPort = -1

	assert.NoError(t, cfg.Validate())
}
