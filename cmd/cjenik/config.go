package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full cjenik configuration.
type Config struct {
	Listen          string `yaml:"listen"`
	DBPath          string `yaml:"db_path"`
	BaseURL         string `yaml:"base_url"`
	UserAgent       string `yaml:"user_agent"`
	HTTPTimeoutSecs int    `yaml:"http_timeout_secs"`
	ListTTLSecs     int    `yaml:"list_ttl_secs"`
	LogLevel        string `yaml:"log_level"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8090",
		DBPath:          "db/catalog.db",
		BaseURL:         "https://api.cijene.dev",
		UserAgent:       "cjenik/1.0",
		HTTPTimeoutSecs: 60,
		ListTTLSecs:     3600,
		LogLevel:        "info",
	}
}

// HTTPTimeout returns the per-call timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// ListTTL returns the archive-list cache lifetime as a duration.
func (c *Config) ListTTL() time.Duration {
	return time.Duration(c.ListTTLSecs) * time.Second
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
// A missing file is fine — defaults plus environment overrides apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv lets the common knobs come from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("CJENIK_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CJENIK_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	return nil
}
