// Package config defines the daemon configuration, its defaults and the
// YAML file round-trip.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Root is the workspace directory under review.
	Root      string         `yaml:"root"`
	Watch     WatchConfig    `yaml:"watch"`
	Server    ServerConfig   `yaml:"server"`
	Cache     CacheConfig    `yaml:"cache"`
	Baselines BaselineConfig `yaml:"baselines"`
	Journal   JournalConfig  `yaml:"journal"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// WatchConfig controls which files are observed.
type WatchConfig struct {
	// Globs selects the files whose events are tracked. Empty matches
	// every file.
	Globs []string `yaml:"globs"`
	// Exclude holds path-substring patterns that are never tracked.
	Exclude []string `yaml:"exclude"`
}

// ServerConfig is the HTTP listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig bounds the pre-edit content cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// BaselineConfig tunes in-memory baseline storage.
type BaselineConfig struct {
	CompressMinBytes int `yaml:"compress_min_bytes"`
}

// JournalConfig controls the on-disk operation journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Root: ".",
		Watch: WatchConfig{
			Globs:   []string{"**/*"},
			Exclude: []string{".git", ".pcr", "node_modules", "vendor", "dist", "build"},
		},
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8417},
		Cache:     CacheConfig{MaxEntries: 512},
		Baselines: BaselineConfig{CompressMinBytes: 4096},
		Journal:   JournalConfig{Enabled: true, Path: ".pcr/journal"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Validate checks for mistakes that would otherwise only surface later.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must not be negative")
	}
	if c.Baselines.CompressMinBytes < 0 {
		return fmt.Errorf("baselines compress_min_bytes must not be negative")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal enabled without a path")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// Load reads the YAML file at path and overlays it onto the defaults, so a
// partial file only overrides what it names. A missing file yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
