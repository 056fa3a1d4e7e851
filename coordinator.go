// coordinator.go: Agent coordinator wiring dispatch, registry and watcher
//
// The coordinator is constructed explicitly and passed by reference — there
// is no ambient singleton. It exposes the single hook the host runtime calls
// on every code unit load or redefinition, and the registration surface
// plugins and hosts use at setup time.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"errors"
	"sync"
)

// Agent wires the transform dispatcher, plugin instance registry, handler
// resolver and filesystem watcher into one coordinator.
type Agent struct {
	dispatcher *TransformDispatcher
	registry   *PluginInstanceRegistry
	resolver   *HandlerResolver
	watcher    *Watcher
	logger     Logger

	mu      sync.Mutex
	config  AgentConfig
	started bool

	// optional host callback invoked after a config hot reload is applied
	reloadCallback func(AgentConfig)
}

// AgentStats aggregates observability snapshots across components.
type AgentStats struct {
	Dispatcher   DispatcherStats `json:"dispatcher"`
	Instances    int             `json:"instances"`
	WatcherState string          `json:"watcher_state"`
}

// NewAgent validates the configuration and constructs a fully wired agent.
// The watcher is allocated here but its goroutine starts only in Start.
func NewAgent(config AgentConfig, logger any) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	log := NewLogger(logger)
	resolver := NewHandlerResolver(log)

	watcher, err := NewWatcher(log)
	if err != nil {
		return nil, err
	}

	registry := NewPluginInstanceRegistry(config.RuntimeVersion, resolver, log)
	registry.SetWatcher(watcher)

	agent := &Agent{
		dispatcher: NewTransformDispatcher(config.SyntheticPredicate(), config.CircuitBreaker, log),
		registry:   registry,
		resolver:   resolver,
		watcher:    watcher,
		logger:     log,
		config:     config,
	}

	log.Info("Agent constructed",
		"runtime_version", config.RuntimeVersion,
		"watch_roots", len(config.WatchRoots),
		"synthetic_markers", len(config.SyntheticMarkers))

	return agent, nil
}

// OnLoad is the single hook the host runtime calls for every code unit
// definition or redefinition. It returns the (possibly transformed) bytes;
// an unchanged result means no modification. The hook never fails: plugin
// problems degrade to unchanged bytes and a logged warning.
func (a *Agent) OnLoad(loadCtx *LoadingContext, unitName string, existing *CodeUnit, scope *ProtectionScope, bytes []byte) []byte {
	if loadCtx == nil {
		loadCtx = &LoadingContext{ID: "bootstrap"}
	}
	return a.dispatcher.Dispatch(loadCtx, unitName, existing, scope, bytes)
}

// RegisterPlugin registers a plugin factory and wires the plugin's validated
// transform descriptors into the dispatcher. Each descriptor that fails
// pattern registration is skipped with a logged registration error; the
// plugin's remaining handlers register normally.
func (a *Agent) RegisterPlugin(pluginType string, factory PluginFactory) error {
	if err := a.registry.RegisterFactory(pluginType, factory); err != nil {
		return err
	}

	for _, desc := range a.registry.TransformDescriptors(pluginType) {
		handlerName := desc.Name
		invoke := func(loadCtx *LoadingContext, unitName string, existing *CodeUnit, scope *ProtectionScope, bytes []byte) ([]byte, error) {
			inst, err := a.registry.InstanceFor(pluginType, loadCtx)
			if err != nil {
				return nil, err
			}
			bound, ok := inst.Handler(handlerName)
			if !ok {
				return nil, NewInvalidDescriptorError(handlerName, "handler not declared by context instance")
			}
			return a.resolver.InvokeTransform(bound, dispatchCall{
				loadCtx:  loadCtx,
				unitName: unitName,
				existing: existing,
				scope:    scope,
				bytes:    bytes,
			})
		}

		if err := a.dispatcher.register(pluginType, desc.Name, desc.Pattern, desc.OnDefine, desc.OnReload, invoke); err != nil {
			a.logger.Error("Transform registration rejected",
				"plugin_type", pluginType,
				"handler", desc.Name,
				"pattern", desc.Pattern,
				"error", err)
		}
	}

	return nil
}

// RegisterTransformer registers a host-owned transformer directly, without a
// plugin declaration. Later registrations with the same pattern add another
// chain entry; there is no deduplication.
func (a *Agent) RegisterTransformer(pattern string, onDefine, onReload bool, handler TransformFunc) error {
	return a.dispatcher.RegisterTransformer(pattern, onDefine, onReload, handler)
}

// Start registers the configured watch roots and launches the watcher. Root
// registration failures are surfaced; roots after a failing one are still
// attempted so one bad path does not block the rest.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return NewWatcherStateError("agent already started")
	}

	var rootErrs []error
	for _, root := range a.config.WatchRoots {
		if err := a.watcher.Watch(root); err != nil {
			rootErrs = append(rootErrs, err)
		}
	}

	if err := a.watcher.Start(); err != nil {
		return err
	}

	a.started = true
	a.logger.Info("Agent started", "watch_roots", len(a.config.WatchRoots))
	return errors.Join(rootErrs...)
}

// Stop shuts the watcher down. Transform dispatch keeps working after Stop;
// only filesystem-driven reload cycles cease.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	return a.watcher.Stop()
}

// RetireContext releases every plugin instance belonging to the loading
// context. The host must call this when it retires an isolation boundary.
// Returns the number of instances released.
func (a *Agent) RetireContext(loadCtx *LoadingContext) int {
	return a.registry.RetireContext(loadCtx)
}

// Watcher returns the agent's filesystem watcher for direct listener and
// root registration.
func (a *Agent) Watcher() *Watcher {
	return a.watcher
}

// SetSyntheticPredicate replaces the synthetic-unit predicate wholesale,
// for hosts whose generation scheme is not marker-based.
func (a *Agent) SetSyntheticPredicate(pred SyntheticPredicate) {
	a.dispatcher.SetSyntheticPredicate(pred)
}

// SetReloadCallback registers a host callback invoked after each applied
// configuration hot reload (e.g. to adjust the logging sink's level).
func (a *Agent) SetReloadCallback(fn func(AgentConfig)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloadCallback = fn
}

// ApplyConfig hot-applies the reloadable parts of a new configuration:
// synthetic markers and the circuit breaker policy. Construction-time values
// (runtime version, watch roots) are ignored here.
func (a *Agent) ApplyConfig(cfg AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ApplyDefaults()

	a.dispatcher.SetSyntheticPredicate(cfg.SyntheticPredicate())
	a.dispatcher.ApplyBreakerConfig(cfg.CircuitBreaker)

	a.mu.Lock()
	a.config.SyntheticMarkers = cfg.SyntheticMarkers
	a.config.CircuitBreaker = cfg.CircuitBreaker
	a.config.LogLevel = cfg.LogLevel
	callback := a.reloadCallback
	applied := a.config
	a.mu.Unlock()

	a.logger.Info("Agent configuration applied",
		"synthetic_markers", len(cfg.SyntheticMarkers),
		"breaker_enabled", cfg.CircuitBreaker.Enabled,
		"log_level", cfg.LogLevel)

	if callback != nil {
		callback(applied)
	}
	return nil
}

// Config returns a copy of the agent's current configuration.
func (a *Agent) Config() AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Stats returns an aggregated observability snapshot.
func (a *Agent) Stats() AgentStats {
	return AgentStats{
		Dispatcher:   a.dispatcher.Stats(),
		Instances:    a.registry.InstanceCount(),
		WatcherState: a.watcher.State().String(),
	}
}
