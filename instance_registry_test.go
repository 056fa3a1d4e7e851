// instance_registry_test.go: Tests for the per-context plugin instance registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPlugin implements Plugin for registry tests, with optional
// collaborator-awareness and call counting.
type mockPlugin struct {
	info        PluginInfo
	descriptors []HandlerDescriptor

	initCalls atomic.Int64

	mu      sync.Mutex
	logger  Logger
	watcher *Watcher
}

func (m *mockPlugin) Info() PluginInfo              { return m.info }
func (m *mockPlugin) Handlers() []HandlerDescriptor { return m.descriptors }

func (m *mockPlugin) SetLogger(l Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = l
}

func (m *mockPlugin) SetWatcher(w *Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watcher = w
}

func newMockPlugin(name string) *mockPlugin {
	p := &mockPlugin{
		info: PluginInfo{Name: name, Version: "1.0.0"},
	}
	p.descriptors = []HandlerDescriptor{
		{
			Name: "onInit", Kind: HandlerInit,
			Params: []ParamKind{ParamLoadingContext},
			Fn: func(args []any) (any, error) {
				p.initCalls.Add(1)
				return nil, nil
			},
		},
		{
			Name: "transformAll", Kind: HandlerTransform,
			Pattern: `.*`, OnDefine: true, OnReload: true,
			Fn: noopHandler,
		},
	}
	return p
}

func newTestRegistry(runtimeVersion string) *PluginInstanceRegistry {
	return NewPluginInstanceRegistry(runtimeVersion, NewHandlerResolver(nil), nil)
}

func TestRegisterFactory_DuplicateRejected(t *testing.T) {
	registry := newTestRegistry("11")

	factory := func() Plugin { return newMockPlugin("demo") }
	require.NoError(t, registry.RegisterFactory("demo", factory))
	assert.Error(t, registry.RegisterFactory("demo", factory))
}

func TestRegisterFactory_NilFactoryRejected(t *testing.T) {
	registry := newTestRegistry("11")
	assert.Error(t, registry.RegisterFactory("demo", nil))
}

func TestRegisterFactory_InvalidDescriptorDisablesOnlyThatHandler(t *testing.T) {
	logger := NewTestLogger()
	registry := NewPluginInstanceRegistry("11", NewHandlerResolver(logger), logger)

	factory := func() Plugin {
		return &mockPlugin{
			info: PluginInfo{Name: "partial"},
			descriptors: []HandlerDescriptor{
				{
					// unknown parameter kind: disabled at registration
					Name: "broken", Kind: HandlerTransform, Pattern: ".*", OnDefine: true,
					Params: []ParamKind{ParamKind(99)},
					Fn:     noopHandler,
				},
				{
					Name: "healthy", Kind: HandlerTransform, Pattern: ".*", OnDefine: true,
					Fn: noopHandler,
				},
			},
		}
	}

	require.NoError(t, registry.RegisterFactory("partial", factory))

	valid := registry.ValidHandlers("partial")
	assert.Equal(t, []string{"healthy"}, valid)
	assert.True(t, logger.HasMessage("ERROR", "Handler descriptor rejected"))
}

func TestTransformDescriptors_OnlyTransformKind(t *testing.T) {
	registry := newTestRegistry("11")
	require.NoError(t, registry.RegisterFactory("demo", func() Plugin { return newMockPlugin("demo") }))

	descs := registry.TransformDescriptors("demo")
	require.Len(t, descs, 1)
	assert.Equal(t, "transformAll", descs[0].Name)

	assert.Nil(t, registry.TransformDescriptors("missing"))
}

func TestInstanceFor_SingletonPerPair(t *testing.T) {
	registry := newTestRegistry("11")
	require.NoError(t, registry.RegisterFactory("demo", func() Plugin { return newMockPlugin("demo") }))

	ctxA := &LoadingContext{ID: "A"}
	ctxB := &LoadingContext{ID: "B"}

	first, err := registry.InstanceFor("demo", ctxA)
	require.NoError(t, err)
	second, err := registry.InstanceFor("demo", ctxA)
	require.NoError(t, err)
	other, err := registry.InstanceFor("demo", ctxB)
	require.NoError(t, err)

	assert.Same(t, first, second, "same pair must yield the same instance")
	assert.NotSame(t, first, other, "different contexts must get independent instances")
	assert.Equal(t, 2, registry.InstanceCount())
}

func TestInstanceFor_UnknownPluginType(t *testing.T) {
	registry := newTestRegistry("11")
	_, err := registry.InstanceFor("ghost", &LoadingContext{ID: "A"})
	assert.Error(t, err)
}

func TestInstanceFor_InitRunsExactlyOnce(t *testing.T) {
	registry := newTestRegistry("11")

	var created []*mockPlugin
	var mu sync.Mutex
	require.NoError(t, registry.RegisterFactory("demo", func() Plugin {
		p := newMockPlugin("demo")
		mu.Lock()
		created = append(created, p)
		mu.Unlock()
		return p
	}))

	ctx := &LoadingContext{ID: "A"}
	for i := 0; i < 5; i++ {
		_, err := registry.InstanceFor("demo", ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	// index 0 is the validation prototype, index 1 serves the context
	require.Len(t, created, 2)
	assert.Equal(t, int64(0), created[0].initCalls.Load())
	assert.Equal(t, int64(1), created[1].initCalls.Load())
}

func TestInstanceFor_ConcurrentCallersShareInstance(t *testing.T) {
	registry := newTestRegistry("11")
	require.NoError(t, registry.RegisterFactory("demo", func() Plugin { return newMockPlugin("demo") }))

	ctx := &LoadingContext{ID: "A"}

	const callers = 16
	results := make([]*PluginInstance, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			inst, err := registry.InstanceFor("demo", ctx)
			assert.NoError(t, err)
			results[slot] = inst
		}(i)
	}
	wg.Wait()

	for _, inst := range results[1:] {
		assert.Same(t, results[0], inst)
	}
	assert.Equal(t, 1, registry.InstanceCount())
}

func TestInstanceFor_RuntimeVersionMismatchDisablesPerContext(t *testing.T) {
	logger := NewTestLogger()
	registry := NewPluginInstanceRegistry("11", NewHandlerResolver(logger), logger)

	require.NoError(t, registry.RegisterFactory("pinned", func() Plugin {
		p := newMockPlugin("pinned")
		p.info.RequiresRuntime = "17"
		return p
	}))

	ctx := &LoadingContext{ID: "A"}
	_, err := registry.InstanceFor("pinned", ctx)
	assert.Error(t, err)

	// verdict is cached; the warning is logged once per (type, context)
	_, err = registry.InstanceFor("pinned", ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, logger.CountLevel("WARN"))
	assert.Equal(t, 0, registry.InstanceCount())
}

func TestInstanceFor_CollaboratorInjection(t *testing.T) {
	registry := newTestRegistry("11")

	watcher, err := NewWatcher(nil)
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()
	registry.SetWatcher(watcher)

	var instance *mockPlugin
	require.NoError(t, registry.RegisterFactory("aware", func() Plugin {
		p := newMockPlugin("aware")
		instance = p
		return p
	}))

	_, err = registry.InstanceFor("aware", &LoadingContext{ID: "A"})
	require.NoError(t, err)

	instance.mu.Lock()
	defer instance.mu.Unlock()
	assert.NotNil(t, instance.logger)
	assert.Same(t, watcher, instance.watcher)
}

func TestRetireContext_ReleasesInstancesAndVerdicts(t *testing.T) {
	registry := newTestRegistry("11")
	require.NoError(t, registry.RegisterFactory("demo", func() Plugin { return newMockPlugin("demo") }))
	require.NoError(t, registry.RegisterFactory("other", func() Plugin { return newMockPlugin("other") }))

	ctxA := &LoadingContext{ID: "A"}
	ctxB := &LoadingContext{ID: "B"}
	for _, pt := range []string{"demo", "other"} {
		for _, ctx := range []*LoadingContext{ctxA, ctxB} {
			_, err := registry.InstanceFor(pt, ctx)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 4, registry.InstanceCount())

	released := registry.RetireContext(ctxA)
	assert.Equal(t, 2, released)
	assert.Equal(t, 2, registry.InstanceCount())

	// a context reappearing with the same ID starts from scratch
	fresh, err := registry.InstanceFor("demo", ctxA)
	require.NoError(t, err)
	assert.NotNil(t, fresh)
	assert.Equal(t, 3, registry.InstanceCount())
}
