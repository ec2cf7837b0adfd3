// Package config loads the mrm YAML configuration and its environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/mrm-sim/internal/navigation"
	"github.com/danielpatrickdp/mrm-sim/internal/planner"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
)

// #region types
// Config is the top-level configuration for simulate, train and serve-policy.
type Config struct {
	Planner    planner.Config    `yaml:"planner"`
	Navigation navigation.Config `yaml:"navigation"`
	Policy     policy.Config     `yaml:"policy"`
	Epochs     int               `yaml:"epochs"`
	Store      StoreConfig       `yaml:"store"`
	Logging    LoggingConfig     `yaml:"logging"`
	Remote     RemoteConfig      `yaml:"remote"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
}

// StoreConfig locates the run database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	// Level is one of warn, info, debug, trace.
	Level string `yaml:"level"`
}

// RemoteConfig points at a policy service. An empty Addr uses the local policy.
type RemoteConfig struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Env holds the environment overrides.
type Env struct {
	DB           string `env:"MRM_DB"`
	LogLevel     string `env:"MRM_LOG_LEVEL"`
	OTelEndpoint string `env:"MRM_OTEL_ENDPOINT"`
	PolicyAddr   string `env:"MRM_POLICY_ADDR"`
}

// #endregion types

// Default returns a random search on the default navigation grid.
func Default() *Config {
	pc := planner.DefaultConfig(planner.KindRandomSearch)
	pol := policy.DefaultConfig()
	pol.Horizon = pc.Horizon
	return &Config{
		Planner:    pc,
		Navigation: navigation.DefaultConfig(),
		Policy:     pol,
		Epochs:     20,
		Store:      StoreConfig{Path: "mrm.db"},
		Logging:    LoggingConfig{Level: "info"},
		Remote:     RemoteConfig{Timeout: 5 * time.Second},
		Telemetry:  TelemetryConfig{ServiceName: "mrm"},
	}
}

// #region load
// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	var e Env
	if err := ParseEnv(&e); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(e)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields for every non-empty variable in e.
func (c *Config) ApplyEnv(e Env) {
	if e.DB != "" {
		c.Store.Path = e.DB
	}
	if e.LogLevel != "" {
		c.Logging.Level = e.LogLevel
	}
	if e.OTelEndpoint != "" {
		c.Telemetry.Endpoint = e.OTelEndpoint
	}
	if e.PolicyAddr != "" {
		c.Remote.Addr = e.PolicyAddr
	}
}

// #endregion load

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.Navigation.Validate(); err != nil {
		return err
	}
	if c.Policy.Bound <= 0 {
		return fmt.Errorf("policy bound must be positive, got %v", c.Policy.Bound)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote timeout must be non-negative, got %v", c.Remote.Timeout)
	}
	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}
