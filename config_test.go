// config_test.go: Tests for agent configuration loading and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.CircuitBreaker.Enabled)
}

func TestAgentConfig_ApplyDefaults(t *testing.T) {
	var cfg AgentConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, cfg.CircuitBreaker.FailureThreshold)
}

func TestAgentConfig_ValidateRejections(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*AgentConfig)
	}{
		{
			name:   "unknown log level",
			mutate: func(c *AgentConfig) { c.LogLevel = "trace" },
		},
		{
			name:   "blank watch root",
			mutate: func(c *AgentConfig) { c.WatchRoots = []string{"  "} },
		},
		{
			name: "enabled breaker with zero failure threshold",
			mutate: func(c *AgentConfig) {
				c.CircuitBreaker.Enabled = true
				c.CircuitBreaker.FailureThreshold = 0
			},
		},
		{
			name: "enabled breaker with zero recovery timeout",
			mutate: func(c *AgentConfig) {
				c.CircuitBreaker.Enabled = true
				c.CircuitBreaker.RecoveryTimeout = 0
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultAgentConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAgentConfig_SyntheticPredicate(t *testing.T) {
	cfg := DefaultAgentConfig()
	cfg.SyntheticMarkers = []string{"$$Lambda$", "__JDK"}

	pred := cfg.SyntheticPredicate()
	assert.True(t, pred("com.example.Fn$$Lambda$12"))
	assert.True(t, pred("sun.reflect.__JDKAccessor"))
	assert.False(t, pred("com.example.Service"))
}

func TestLoadAgentConfigFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := []byte(`
runtime_version: "17"
synthetic_markers:
  - "$$Lambda$"
watch_roots:
  - /tmp/classes
log_level: debug
circuit_breaker:
  enabled: true
  failure_threshold: 3
  recovery_timeout: 10000000000
  min_request_threshold: 2
  success_threshold: 1
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadAgentConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "17", cfg.RuntimeVersion)
	assert.Equal(t, []string{"$$Lambda$"}, cfg.SyntheticMarkers)
	assert.Equal(t, []string{"/tmp/classes"}, cfg.WatchRoots)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreaker.RecoveryTimeout)
}

func TestLoadAgentConfigFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	content := []byte(`{
  "runtime_version": "11",
  "log_level": "warn"
}`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadAgentConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "11", cfg.RuntimeVersion)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadAgentConfigFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadAgentConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0o600))
		_, err := LoadAgentConfigFile(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`log_level: noisy`), 0o600))
		_, err := LoadAgentConfigFile(path)
		assert.Error(t, err)
	})
}
