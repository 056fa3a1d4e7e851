// config_watcher.go: Agent configuration hot reload with Argus integration
//
// Watches the agent configuration file and hot-applies the reloadable
// settings (synthetic markers, circuit breaker policy, log level) without
// restarting the agent. Construction-time settings such as the runtime
// version and watch roots are intentionally not reapplied.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// AgentConfigWatcher hot-reloads the agent configuration file via Argus.
//
// Usage:
//
//	cw, err := NewAgentConfigWatcher(agent, "/etc/go-hotload/agent.yaml", DefaultAgentConfigWatcherOptions())
//	if err != nil { ... }
//	if err := cw.Start(); err != nil { ... }
//	defer cw.Stop()
type AgentConfigWatcher struct {
	agent  *Agent
	logger Logger

	watcher    *argus.Watcher
	configPath string

	currentConfig atomic.Pointer[AgentConfig]

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	mutex    sync.Mutex

	options AgentConfigWatcherOptions
}

// AgentConfigWatcherOptions customizes polling and auditing behavior.
type AgentConfigWatcherOptions struct {
	// PollInterval controls how often Argus checks the file for changes.
	PollInterval time.Duration

	// CacheTTL bounds how long stat results are cached between polls.
	CacheTTL time.Duration

	// AuditConfig enables Argus audit trail output for config changes.
	AuditConfig argus.AuditConfig

	// ErrorHandler receives file watching errors. Defaults to logging.
	ErrorHandler func(err error, filepath string)
}

// DefaultAgentConfigWatcherOptions returns options suited to agent config
// files, which change rarely but should apply promptly when they do.
func DefaultAgentConfigWatcherOptions() AgentConfigWatcherOptions {
	return AgentConfigWatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     time.Second,
		AuditConfig:  argus.AuditConfig{Enabled: false},
	}
}

// NewAgentConfigWatcher creates a watcher for the given agent and config
// file path. The watcher is inert until Start is called.
func NewAgentConfigWatcher(agent *Agent, configPath string, options AgentConfigWatcherOptions) (*AgentConfigWatcher, error) {
	if agent == nil {
		return nil, NewConfigWatcherError("agent cannot be nil", nil)
	}
	if configPath == "" {
		return nil, NewConfigWatcherError("config path cannot be empty", nil)
	}
	if options.PollInterval <= 0 {
		options.PollInterval = 2 * time.Second
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = time.Second
	}

	logger := agent.logger

	argusConfig := argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      5,
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			if options.ErrorHandler != nil {
				options.ErrorHandler(err, filepath)
				return
			}
			logger.Error("Agent config file watching error", "error", err, "file", filepath)
		},
	}

	return &AgentConfigWatcher{
		agent:      agent,
		logger:     logger,
		watcher:    argus.New(argusConfig),
		configPath: configPath,
		options:    options,
	}, nil
}

// Start loads and applies the current configuration file, then begins
// watching it for changes. A watcher that has been stopped cannot be
// restarted.
func (cw *AgentConfigWatcher) Start() error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}

	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	initial, err := LoadAgentConfigFile(cw.configPath)
	if err != nil {
		cw.enabled.Store(false)
		return err
	}

	if err := cw.agent.ApplyConfig(initial); err != nil {
		cw.enabled.Store(false)
		return err
	}
	cw.currentConfig.Store(&initial)

	if err := cw.watcher.Watch(cw.configPath, cw.handleConfigChange); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to watch agent config file", err)
	}

	if err := cw.watcher.Start(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to start config watcher", err)
	}

	cw.logger.Info("Agent configuration watcher started",
		"config_path", cw.configPath,
		"poll_interval", cw.options.PollInterval)

	return nil
}

// Stop halts configuration watching permanently. Safe to call more than
// once; only the first call performs shutdown.
func (cw *AgentConfigWatcher) Stop() error {
	if cw.stopped.Load() {
		return nil
	}

	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mutex.Lock()
		defer cw.mutex.Unlock()

		if !cw.enabled.CompareAndSwap(true, false) {
			cw.stopped.Store(true)
			return
		}
		cw.stopped.Store(true)

		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop config watcher", err)
			return
		}

		cw.logger.Info("Agent configuration watcher stopped")
	})

	return stopErr
}

// CurrentConfig returns the most recently applied configuration, or nil if
// nothing has been applied yet.
func (cw *AgentConfigWatcher) CurrentConfig() *AgentConfig {
	return cw.currentConfig.Load()
}

// handleConfigChange reloads and applies the configuration file after a
// change event. A failed load or apply keeps the previous configuration
// active.
func (cw *AgentConfigWatcher) handleConfigChange(event argus.ChangeEvent) {
	cw.logger.Info("Agent configuration file change detected",
		"path", event.Path,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		cw.logger.Warn("Agent configuration file was deleted, keeping current configuration", "path", event.Path)
		return
	}

	newConfig, err := LoadAgentConfigFile(event.Path)
	if err != nil {
		cw.logger.Error("Failed to load new agent configuration", "error", err, "path", event.Path)
		return
	}

	if err := cw.agent.ApplyConfig(newConfig); err != nil {
		cw.logger.Error("Failed to apply new agent configuration", "error", err, "path", event.Path)
		return
	}

	cw.currentConfig.Store(&newConfig)
	cw.logger.Info("Agent configuration reloaded", "path", event.Path)
}
