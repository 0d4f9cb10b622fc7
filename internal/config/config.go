package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for the lakeferry CLI.
type Config struct {
	Store        string `yaml:"store"`         // bucket URL, e.g. s3://bucket?region=us-east-1
	Workers      int    `yaml:"workers"`       // parallel transfer workers per job
	ChunkSize    int64  `yaml:"chunk_size"`    // bytes per chunk
	BufferSize   int    `yaml:"buffer_size"`   // copy buffer bytes
	Retries      int    `yaml:"retries"`       // per-chunk attempt budget
	SaveInterval int    `yaml:"save_interval"` // persist state every N chunks
	RegistryPath string `yaml:"registry_path"` // job registry location; empty means per-user default
	Progress     bool   `yaml:"progress"`      // show a progress bar
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
	LogFormat    string `yaml:"log_format"`    // text or json
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Workers:      16,
		ChunkSize:    256 * 1024 * 1024, // 256MB
		BufferSize:   4 * 1024 * 1024,   // 4MB
		Retries:      5,
		SaveInterval: 10,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// yamlConfig is used for YAML unmarshaling with string byte sizes.
type yamlConfig struct {
	Store        string `yaml:"store"`
	Workers      int    `yaml:"workers"`
	ChunkSize    string `yaml:"chunk_size"`
	BufferSize   string `yaml:"buffer_size"`
	Retries      int    `yaml:"retries"`
	SaveInterval int    `yaml:"save_interval"`
	RegistryPath string `yaml:"registry_path"`
	Progress     bool   `yaml:"progress"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Store != "" {
		cfg.Store = yc.Store
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.ChunkSize != "" {
		size, err := ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.BufferSize != "" {
		size, err := ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = int(size)
	}
	if yc.Retries != 0 {
		cfg.Retries = yc.Retries
	}
	if yc.SaveInterval != 0 {
		cfg.SaveInterval = yc.SaveInterval
	}
	if yc.RegistryPath != "" {
		cfg.RegistryPath = yc.RegistryPath
	}
	cfg.Progress = yc.Progress
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LAKEFERRY_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LAKEFERRY_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("LAKEFERRY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LAKEFERRY_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("LAKEFERRY_CHUNK_SIZE"); v != "" {
		size, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse LAKEFERRY_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("LAKEFERRY_BUFFER_SIZE"); v != "" {
		size, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse LAKEFERRY_BUFFER_SIZE: %w", err)
		}
		c.BufferSize = int(size)
	}
	if v := os.Getenv("LAKEFERRY_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LAKEFERRY_RETRIES: %w", err)
		}
		c.Retries = n
	}
	if v := os.Getenv("LAKEFERRY_SAVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LAKEFERRY_SAVE_INTERVAL: %w", err)
		}
		c.SaveInterval = n
	}
	if v := os.Getenv("LAKEFERRY_REGISTRY_PATH"); v != "" {
		c.RegistryPath = v
	}
	if v := os.Getenv("LAKEFERRY_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("LAKEFERRY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LAKEFERRY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store == "" {
		return errors.New("config: store is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.Retries <= 0 {
		return errors.New("config: retries must be positive")
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.New("config: log_format must be text or json")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Store != "" {
		c.Store = override.Store
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.Retries != 0 {
		c.Retries = override.Retries
	}
	if override.SaveInterval != 0 {
		c.SaveInterval = override.SaveInterval
	}
	if override.RegistryPath != "" {
		c.RegistryPath = override.RegistryPath
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	return c
}
