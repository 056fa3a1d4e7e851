// plugin.go: Core plugin interfaces and declaration surface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

// Plugin is the extension-point contract. A plugin declares its identity and
// a set of handler descriptors; the agent creates one instance per loading
// context (lazily, on the first event the plugin is interested in) and binds
// the declared handlers through the resolver.
//
// Instances returned by a PluginFactory must be independent: state placed on
// one instance is never visible to instances serving other contexts.
type Plugin interface {
	// Info returns metadata about the plugin
	Info() PluginInfo

	// Handlers returns the declared extension-point handlers of this
	// instance. Descriptors are validated once per plugin type at factory
	// registration; an invalid descriptor disables only that handler.
	Handlers() []HandlerDescriptor
}

// PluginFactory creates a fresh plugin instance for one loading context.
type PluginFactory func() Plugin

// PluginInfo describes a plugin's identity and compatibility.
type PluginInfo struct {
	// Name is the human-readable plugin name used in logs.
	Name string

	// Version is the plugin's own version string.
	Version string

	// RequiresRuntime optionally pins the host runtime version this plugin
	// supports. When non-empty it is checked once per loading context; a
	// mismatch disables the plugin for that context only.
	RequiresRuntime string
}

// HandlerKind distinguishes the lifecycle phase a handler participates in.
type HandlerKind int

const (
	// HandlerInit runs once per loading context when the plugin instance is
	// initialized. Init handlers may declare only the loading-context and
	// deferred-executor parameter kinds.
	HandlerInit HandlerKind = iota

	// HandlerTransform runs for every code unit whose name fully matches the
	// descriptor's pattern, subject to the OnDefine/OnReload gates.
	HandlerTransform
)

// String returns a human-readable representation of the handler kind.
func (k HandlerKind) String() string {
	switch k {
	case HandlerInit:
		return "init"
	case HandlerTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// ParamKind enumerates the fixed vocabulary of values a handler may declare.
// Anything outside this vocabulary is a fail-fast registration error that
// disables only the offending handler.
type ParamKind int

const (
	// ParamLoadingContext binds the *LoadingContext of the current call.
	ParamLoadingContext ParamKind = iota

	// ParamUnitName binds the fully qualified unit name (string).
	ParamUnitName

	// ParamRedefinedUnit binds the *CodeUnit being redefined, or nil when the
	// unit is being defined for the first time.
	ParamRedefinedUnit

	// ParamProtectionScope binds the *ProtectionScope of the current call.
	ParamProtectionScope

	// ParamRawBytes binds the current (possibly already transformed) bytes.
	ParamRawBytes

	// ParamEditableUnit binds a lazily constructed *EditableUnit handle. The
	// handle is released on every exit path exactly once.
	ParamEditableUnit

	// ParamDeferredExecutor binds a *DeferredExecutor for running follow-up
	// work against the loading context.
	ParamDeferredExecutor
)

// String returns the vocabulary name of the parameter kind.
func (k ParamKind) String() string {
	switch k {
	case ParamLoadingContext:
		return "loading-context"
	case ParamUnitName:
		return "unit-name"
	case ParamRedefinedUnit:
		return "redefined-unit"
	case ParamProtectionScope:
		return "protection-scope"
	case ParamRawBytes:
		return "raw-bytes"
	case ParamEditableUnit:
		return "editable-unit"
	case ParamDeferredExecutor:
		return "deferred-executor"
	default:
		return "unrecognized"
	}
}

// known reports whether the kind belongs to the fixed vocabulary.
func (k ParamKind) known() bool {
	return k >= ParamLoadingContext && k <= ParamDeferredExecutor
}

// HandlerFunc is the uniform call shape of a declared handler. Arguments
// arrive in the order of the descriptor's Params slice, each carrying the Go
// value for its declared kind.
//
// Transform handlers may return nil (unit unchanged), []byte (adopted as the
// new result) or *EditableUnit (serialized to bytes, then released). Init
// handlers' results are ignored.
type HandlerFunc func(args []any) (any, error)

// HandlerDescriptor declares one extension-point handler: the lifecycle kind,
// the match criteria and the ordered parameter kinds the handler accepts.
type HandlerDescriptor struct {
	// Name identifies the handler in logs and errors. Required.
	Name string

	// Kind selects the lifecycle phase (init or transform).
	Kind HandlerKind

	// Pattern is the unit-name regex for transform handlers. The pattern is
	// matched against the full unit name. Ignored for init handlers.
	Pattern string

	// OnDefine enables the handler for first-time definitions.
	OnDefine bool

	// OnReload enables the handler for redefinitions of already-loaded units.
	OnReload bool

	// Params lists the accepted parameter kinds in call order.
	Params []ParamKind

	// Fn is the handler implementation. Required.
	Fn HandlerFunc
}

// Collaborator injection surface. A plugin instance that implements one of
// these interfaces receives the collaborator right after construction, before
// any init handler runs.

// WatcherAware plugins receive the agent's filesystem watcher so they can
// register roots and listeners during initialization.
type WatcherAware interface {
	SetWatcher(w *Watcher)
}

// LoggerAware plugins receive the agent's logger scoped to the plugin name.
type LoggerAware interface {
	SetLogger(l Logger)
}
