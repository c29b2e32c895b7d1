package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete agent configuration, flattened into a single
// manageable structure.
type Config struct {
	// Server settings
	ServerAddress string `yaml:"server_address"`
	ServerPort    int    `yaml:"server_port"`

	// Broadcast discovery responder
	DiscoveryEnabled bool `yaml:"discovery_enabled"`
	DiscoveryPort    int  `yaml:"discovery_port"`

	// Timeouts. NetworkTimeout bounds control-plane dials (progress and
	// completion endpoints); TransferAcceptTimeout bounds the one-shot
	// transfer listener's wait for a peer.
	NetworkTimeout        time.Duration `yaml:"network_timeout"`
	TransferAcceptTimeout time.Duration `yaml:"transfer_accept_timeout"`

	// Completion callback retry policy
	CallbackAttempts       int           `yaml:"callback_attempts"`
	CallbackInitialBackoff time.Duration `yaml:"callback_initial_backoff"`

	// Backup logs for streamed job output are written here; empty means
	// the system temp directory.
	BackupLogDir string `yaml:"backup_log_dir"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// GetServerAddress returns the full listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.ServerAddress, c.ServerPort)
}

// GetDefaults returns a config with sensible defaults
func GetDefaults() *Config {
	return &Config{
		ServerAddress:          "0.0.0.0",
		ServerPort:             8765,
		DiscoveryEnabled:       true,
		DiscoveryPort:          8766,
		NetworkTimeout:         5 * time.Second,
		TransferAcceptTimeout:  10 * time.Second,
		CallbackAttempts:       5,
		CallbackInitialBackoff: 1 * time.Second,
		BackupLogDir:           "",
		LogLevel:               "INFO",
	}
}

// LoadConfig loads configuration from the given path, falling back to the
// SIMPLEREMOTE_CONFIG environment variable and then to defaults when no
// file is present. A missing file is not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaults()

	if path == "" {
		path = os.Getenv("SIMPLEREMOTE_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the agent cannot run with
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	if c.DiscoveryEnabled && (c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535) {
		return fmt.Errorf("discovery_port out of range: %d", c.DiscoveryPort)
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("network_timeout must be positive: %v", c.NetworkTimeout)
	}
	if c.TransferAcceptTimeout <= 0 {
		return fmt.Errorf("transfer_accept_timeout must be positive: %v", c.TransferAcceptTimeout)
	}
	if c.CallbackAttempts < 1 {
		return fmt.Errorf("callback_attempts must be at least 1: %d", c.CallbackAttempts)
	}
	return nil
}
