// instance_registry.go: Per-loading-context plugin instance registry
//
// One instance of each plugin type exists per loading context, created on the
// first event that touches the pair and initialized at most once. Storage is
// a two-level map keyed by plugin type and context ID; the host signals
// context retirement explicitly instead of the registry holding weak
// references it cannot express.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"sync"
)

// PluginInstance pairs one plugin value with the loading context it serves.
// The instance's handler table is resolved once, from the descriptors that
// survived registration-time validation.
type PluginInstance struct {
	pluginType string
	context    *LoadingContext
	plugin     Plugin
	handlers   map[string]HandlerDescriptor

	initOnce sync.Once
}

// PluginType returns the type identifier the instance was created for.
func (pi *PluginInstance) PluginType() string { return pi.pluginType }

// Context returns the loading context the instance serves.
func (pi *PluginInstance) Context() *LoadingContext { return pi.context }

// Plugin returns the underlying plugin value.
func (pi *PluginInstance) Plugin() Plugin { return pi.plugin }

// Handler returns the named validated handler, if the instance declares it.
func (pi *PluginInstance) Handler(name string) (HandlerDescriptor, bool) {
	desc, ok := pi.handlers[name]
	return desc, ok
}

// ensureInit runs the instance's init handlers exactly once. Repeated calls
// (the relevant code unit observed loading more than once) are no-ops, which
// is what makes initialization idempotent per context. Handler failures are
// logged and do not mark the instance uninitialized; init is best effort.
func (pi *PluginInstance) ensureInit(resolver *HandlerResolver, logger Logger) {
	pi.initOnce.Do(func() {
		for _, desc := range pi.handlers {
			if desc.Kind != HandlerInit {
				continue
			}
			if err := resolver.InvokeInit(desc, pi.context); err != nil {
				logger.Error("Plugin init handler failed",
					"plugin_type", pi.pluginType,
					"handler", desc.Name,
					"context", pi.context.String(),
					"error", err)
			}
		}
	})
}

// registeredFactory couples a factory with the descriptors that survived
// validation on the prototype instance.
type registeredFactory struct {
	factory       PluginFactory
	info          PluginInfo
	validHandlers map[string]bool
	descriptors   []HandlerDescriptor
}

// PluginInstanceRegistry manages plugin instances keyed by
// (pluginType, loading context).
//
// Dispatch may run on multiple simultaneous load threads, so reads take a
// shared lock and mutation is serialized. Instance construction happens under
// the write lock; init handlers run outside it so plugin code cannot stall
// unrelated lookups.
type PluginInstanceRegistry struct {
	mu        sync.RWMutex
	factories map[string]*registeredFactory
	instances map[string]map[string]*PluginInstance

	// once-per-context version verdicts; true means refused
	versionDenied map[string]map[string]bool

	runtimeVersion string
	resolver       *HandlerResolver
	logger         Logger

	// collaborators injected into aware instances
	watcher *Watcher
}

// NewPluginInstanceRegistry creates an empty registry. runtimeVersion is the
// host runtime's version marker, matched against PluginInfo.RequiresRuntime.
func NewPluginInstanceRegistry(runtimeVersion string, resolver *HandlerResolver, logger any) *PluginInstanceRegistry {
	return &PluginInstanceRegistry{
		factories:      make(map[string]*registeredFactory),
		instances:      make(map[string]map[string]*PluginInstance),
		versionDenied:  make(map[string]map[string]bool),
		runtimeVersion: runtimeVersion,
		resolver:       resolver,
		logger:         NewLogger(logger),
	}
}

// SetWatcher wires the filesystem watcher handed to WatcherAware instances.
func (r *PluginInstanceRegistry) SetWatcher(w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcher = w
}

// RegisterFactory registers a plugin factory for a type. Descriptors are
// validated on a prototype instance: an invalid descriptor disables only that
// handler (logged), the rest of the plugin registers normally.
func (r *PluginInstanceRegistry) RegisterFactory(pluginType string, factory PluginFactory) error {
	if factory == nil {
		return NewInstanceCreationError(pluginType, "", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[pluginType]; exists {
		return NewDuplicateFactoryError(pluginType)
	}

	prototype := factory()
	if prototype == nil {
		return NewInstanceCreationError(pluginType, "", nil)
	}

	valid := make(map[string]bool)
	var descriptors []HandlerDescriptor
	for _, desc := range prototype.Handlers() {
		if err := r.resolver.ValidateDescriptor(desc); err != nil {
			r.logger.Error("Handler descriptor rejected",
				"plugin_type", pluginType,
				"handler", desc.Name,
				"error", err)
			continue
		}
		valid[desc.Name] = true
		descriptors = append(descriptors, desc)
	}

	r.factories[pluginType] = &registeredFactory{
		factory:       factory,
		info:          prototype.Info(),
		validHandlers: valid,
		descriptors:   descriptors,
	}

	r.logger.Info("Registered plugin factory",
		"plugin_type", pluginType,
		"plugin", prototype.Info().Name,
		"version", prototype.Info().Version,
		"handlers", len(valid))

	return nil
}

// TransformDescriptors returns the validated transform descriptors declared
// by a plugin type's prototype, in declaration order. The coordinator uses
// them to wire the dispatcher; at dispatch time the per-instance descriptor
// of the same name is the one invoked.
func (r *PluginInstanceRegistry) TransformDescriptors(pluginType string) []HandlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rf, ok := r.factories[pluginType]
	if !ok {
		return nil
	}
	var out []HandlerDescriptor
	for _, desc := range rf.descriptors {
		if desc.Kind == HandlerTransform {
			out = append(out, desc)
		}
	}
	return out
}

// ValidHandlers returns the names of the handlers that survived validation
// for a plugin type.
func (r *PluginInstanceRegistry) ValidHandlers(pluginType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rf, ok := r.factories[pluginType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(rf.validHandlers))
	for name := range rf.validHandlers {
		names = append(names, name)
	}
	return names
}

// InstanceFor returns the instance for (pluginType, loadCtx), constructing
// and initializing it exactly once. Safe for concurrent callers; two load
// threads racing on the same pair observe the same instance.
func (r *PluginInstanceRegistry) InstanceFor(pluginType string, loadCtx *LoadingContext) (*PluginInstance, error) {
	// fast path: shared lock lookup
	r.mu.RLock()
	if byCtx, ok := r.instances[pluginType]; ok {
		if inst, ok := byCtx[loadCtx.ID]; ok {
			r.mu.RUnlock()
			inst.ensureInit(r.resolver, r.logger)
			return inst, nil
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	inst, err := r.instanceForLocked(pluginType, loadCtx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// init outside the registry lock so plugin code cannot stall lookups
	inst.ensureInit(r.resolver, r.logger)
	return inst, nil
}

// instanceForLocked is the slow path under the write lock.
func (r *PluginInstanceRegistry) instanceForLocked(pluginType string, loadCtx *LoadingContext) (*PluginInstance, error) {
	if byCtx, ok := r.instances[pluginType]; ok {
		if inst, ok := byCtx[loadCtx.ID]; ok {
			return inst, nil
		}
	}

	rf, ok := r.factories[pluginType]
	if !ok {
		return nil, NewUnknownPluginTypeError(pluginType)
	}

	// version marker checked once per (pluginType, context)
	if denied, checked := r.versionDenied[pluginType][loadCtx.ID]; checked {
		if denied {
			return nil, NewVersionIncompatibleError(pluginType, rf.info.RequiresRuntime, r.runtimeVersion)
		}
	} else {
		denied := rf.info.RequiresRuntime != "" && rf.info.RequiresRuntime != r.runtimeVersion
		if r.versionDenied[pluginType] == nil {
			r.versionDenied[pluginType] = make(map[string]bool)
		}
		r.versionDenied[pluginType][loadCtx.ID] = denied
		if denied {
			err := NewVersionIncompatibleError(pluginType, rf.info.RequiresRuntime, r.runtimeVersion)
			r.logger.Warn("Plugin disabled for context, runtime version mismatch",
				"plugin_type", pluginType,
				"context", loadCtx.String(),
				"error", err)
			return nil, err
		}
	}

	plugin := rf.factory()
	if plugin == nil {
		return nil, NewInstanceCreationError(pluginType, loadCtx.ID, nil)
	}

	if aware, ok := plugin.(LoggerAware); ok {
		aware.SetLogger(r.logger.With("plugin", rf.info.Name, "context", loadCtx.ID))
	}
	if aware, ok := plugin.(WatcherAware); ok && r.watcher != nil {
		aware.SetWatcher(r.watcher)
	}

	handlers := make(map[string]HandlerDescriptor)
	for _, desc := range plugin.Handlers() {
		if rf.validHandlers[desc.Name] {
			handlers[desc.Name] = desc
		}
	}

	inst := &PluginInstance{
		pluginType: pluginType,
		context:    loadCtx,
		plugin:     plugin,
		handlers:   handlers,
	}

	if r.instances[pluginType] == nil {
		r.instances[pluginType] = make(map[string]*PluginInstance)
	}
	r.instances[pluginType][loadCtx.ID] = inst

	r.logger.Debug("Created plugin instance",
		"plugin_type", pluginType,
		"context", loadCtx.String())

	return inst, nil
}

// RetireContext drops every instance and cached verdict belonging to the
// context. The host calls this when the isolation boundary goes away; a later
// load on a context with the same ID re-creates instances from scratch.
// Returns the number of instances released.
func (r *PluginInstanceRegistry) RetireContext(loadCtx *LoadingContext) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for pluginType, byCtx := range r.instances {
		if _, ok := byCtx[loadCtx.ID]; ok {
			delete(byCtx, loadCtx.ID)
			released++
		}
		if len(byCtx) == 0 {
			delete(r.instances, pluginType)
		}
	}
	for pluginType, byCtx := range r.versionDenied {
		delete(byCtx, loadCtx.ID)
		if len(byCtx) == 0 {
			delete(r.versionDenied, pluginType)
		}
	}

	if released > 0 {
		r.logger.Info("Retired loading context",
			"context", loadCtx.String(),
			"instances_released", released)
	}
	return released
}

// InstanceCount returns the number of live instances across all contexts.
func (r *PluginInstanceRegistry) InstanceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, byCtx := range r.instances {
		count += len(byCtx)
	}
	return count
}
