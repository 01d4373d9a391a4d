// Package config loads the engine's YAML configuration, following the
// teacher's nested-struct-with-yaml-tags convention (see
// internal/config in the reference nexus repository) trimmed to the
// concerns this embeddable engine actually has: storage, retrieval,
// intake, permissions, logging, and metrics.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for one embedded engine
// instance.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Intake      IntakeConfig      `yaml:"intake"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// StoreConfig configures the durable SQLite-backed store.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" runs a private
	// in-process database, useful for tests and ephemeral hosts.
	Path string `yaml:"path"`

	// MaxOpenConns bounds the connection pool. SQLite is effectively
	// single-writer regardless, but this caps reader concurrency.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RetrieverConfig configures the scenario-scoped markdown retriever.
type RetrieverConfig struct {
	// KBRoot is the root of the markdown knowledge-base corpus.
	KBRoot string `yaml:"kb_root"`

	// WindowLines is the fixed window size (in lines) used to split
	// each file before indexing. Default: 20, per the spec.
	WindowLines int `yaml:"window_lines"`
}

// IntakeConfig bounds the Plan-phase recursive re-entry from
// intake-done into Draft.
type IntakeConfig struct {
	// MaxIterations caps Plan-phase recursion per turn. Default: 10.
	MaxIterations int `yaml:"max_iterations"`
}

// PermissionsConfig seeds default per-tool permissions at startup,
// overriding the built-in defaults from §3 (ToolPermission) for tools
// named here. Unlisted tools still fall back to the built-in defaults.
type PermissionsConfig struct {
	Defaults map[string]string `yaml:"defaults"`
}

// LoggingConfig controls the slog-based structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible defaults for local/embedded
// use: an in-memory store, a ./kb retrieval root, a 10-iteration
// intake cap, and info-level JSON logging.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:         ":memory:",
			MaxOpenConns: 4,
		},
		Retriever: RetrieverConfig{
			KBRoot:      "kb",
			WindowLines: 20,
		},
		Intake: IntakeConfig{
			MaxIterations: 10,
		},
		Permissions: PermissionsConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML configuration file and merges it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PermissionPollInterval is the bounded wait the PermissionGate uses
// while polling for a host reply, so cancellation stays observable.
const PermissionPollInterval = 300 * time.Millisecond
