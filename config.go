// config.go: Agent configuration with validation and hot-reload support
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentConfig holds the runtime configuration of the hot-load agent.
//
// The settings split into construction-time values (RuntimeVersion) and
// hot-reloadable values (synthetic markers, log level, circuit breaker) that
// the config watcher applies without restart.
type AgentConfig struct {
	// RuntimeVersion is the host runtime's version marker, matched against
	// each plugin's RequiresRuntime pin once per loading context.
	RuntimeVersion string `json:"runtime_version" yaml:"runtime_version"`

	// SyntheticMarkers lists substrings identifying generated unit names
	// that must be excluded from transformation. The resulting predicate can
	// be replaced wholesale via Agent.SetSyntheticPredicate for hosts with
	// different generation schemes.
	SyntheticMarkers []string `json:"synthetic_markers" yaml:"synthetic_markers"`

	// WatchRoots are directory trees registered with the filesystem watcher
	// at agent start.
	WatchRoots []string `json:"watch_roots" yaml:"watch_roots"`

	// LogLevel is advisory for the host's logging sink ("debug", "info",
	// "warn", "error"). The agent forwards it through the reload callback.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// CircuitBreaker is the fail-fast policy applied to every transformer
	// registration.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// DefaultAgentConfig returns a configuration with sensible defaults applied.
func DefaultAgentConfig() AgentConfig {
	cfg := AgentConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with default values.
func (c *AgentConfig) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CircuitBreaker == (CircuitBreakerConfig{}) {
		c.CircuitBreaker = DefaultCircuitBreakerConfig()
	}
}

// Validate checks the configuration's business rules.
func (c *AgentConfig) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return NewConfigInvalidError("unknown log level "+c.LogLevel, nil)
	}

	for _, root := range c.WatchRoots {
		if strings.TrimSpace(root) == "" {
			return NewConfigInvalidError("watch roots cannot be empty", nil)
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return NewConfigInvalidError("circuit breaker failure threshold must be positive", nil)
		}
		if c.CircuitBreaker.SuccessThreshold <= 0 {
			return NewConfigInvalidError("circuit breaker success threshold must be positive", nil)
		}
		if c.CircuitBreaker.RecoveryTimeout <= 0 {
			return NewConfigInvalidError("circuit breaker recovery timeout must be positive", nil)
		}
	}

	return nil
}

// SyntheticPredicate builds the predicate described by the marker list.
func (c *AgentConfig) SyntheticPredicate() SyntheticPredicate {
	return MarkerSyntheticPredicate(c.SyntheticMarkers)
}

// LoadAgentConfigFile reads an agent configuration from a JSON or YAML file,
// selected by extension, then validates it and applies defaults.
func LoadAgentConfigFile(path string) (AgentConfig, error) {
	var cfg AgentConfig

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, NewConfigFileError(path, "read failed", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, NewConfigFileError(path, "YAML parse failed", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, NewConfigFileError(path, "JSON parse failed", err)
		}
	default:
		// try YAML first, fall back to JSON
		if yErr := yaml.Unmarshal(raw, &cfg); yErr != nil {
			if jErr := json.Unmarshal(raw, &cfg); jErr != nil {
				return cfg, NewConfigFileError(path, "unsupported configuration format", yErr)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()

	return cfg, nil
}
