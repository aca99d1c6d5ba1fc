package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Embedded EmbeddedConfig `yaml:"embedded"`
	Backend  BackendConfig  `yaml:"backend"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
}

// EmbeddedConfig describes the local SQLite store
type EmbeddedConfig struct {
	Path string `yaml:"path"` // Database file path or ":memory:"
}

// BackendConfig describes the PostgreSQL backend
type BackendConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port,omitempty"` // Default: 5432
	Database       string `yaml:"database"`
	User           string `yaml:"user,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SSLMode        string `yaml:"sslmode,omitempty"`         // disable, require, verify-ca, verify-full
	PoolSize       int    `yaml:"pool_size,omitempty"`       // Default: 5
	AcquireTimeout string `yaml:"acquire_timeout,omitempty"` // Go duration, e.g. "30s"
	ExecTimeout    string `yaml:"exec_timeout,omitempty"`    // Go duration, e.g. "1m"
}

// SyncConfig controls the schema synchronizer
type SyncConfig struct {
	OwnSchema bool   `yaml:"own_schema,omitempty"` // Allow destructive DROP before CREATE
	StateFile string `yaml:"state_file,omitempty"` // Sync checkpoint file
	BatchSize int    `yaml:"batch_size,omitempty"` // Rows per batch insert
}

// LoadConfig reads and validates a YAML config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Embedded.Path == "" {
		return nil, fmt.Errorf("embedded.path is required")
	}
	if cfg.Backend.Host == "" || cfg.Backend.Database == "" {
		return nil, fmt.Errorf("backend.host and backend.database are required")
	}

	return &cfg, nil
}

// BuildDSN assembles the backend connection string.
// The result carries credentials: print it only through backend.RedactDSN.
func (c *BackendConfig) BuildDSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}

	dsn := "postgresql://"
	if c.User != "" {
		dsn += c.User
		if c.Password != "" {
			dsn += ":" + c.Password
		}
		dsn += "@"
	}
	dsn += fmt.Sprintf("%s:%d/%s", c.Host, port, c.Database)

	if c.SSLMode != "" {
		dsn += "?sslmode=" + c.SSLMode
	}
	return dsn
}

// ParseDuration parses an optional duration field, falling back to def
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// SaveConfig writes a config to a YAML file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateSampleConfig returns a config template with placeholder credentials
func CreateSampleConfig() *Config {
	return &Config{
		Embedded: EmbeddedConfig{Path: "app.db"},
		Backend: BackendConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "appdb",
			User:           "app_user",
			Password:       "change_me",
			SSLMode:        "disable",
			PoolSize:       5,
			AcquireTimeout: "30s",
			ExecTimeout:    "1m",
		},
		Sync: SyncConfig{
			OwnSchema: false,
			StateFile: "bridge_sync_state.json",
			BatchSize: 500,
		},
	}
}
