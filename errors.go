// errors.go: structured error definitions for the hot-load agent
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"github.com/agilira/go-errors"
)

// Error codes for the hot-load agent
const (
	// Registration errors (1000-1099)
	ErrCodeInvalidPattern       = "HOTLOAD_1001"
	ErrCodeUnsupportedParamKind = "HOTLOAD_1002"
	ErrCodeInvalidDescriptor    = "HOTLOAD_1003"
	ErrCodeDuplicateFactory     = "HOTLOAD_1004"
	ErrCodeUnknownPluginType    = "HOTLOAD_1005"

	// Dispatch and invocation errors (1100-1199)
	ErrCodeDispatchFailure   = "HOTLOAD_1101"
	ErrCodeInvocationFailure = "HOTLOAD_1102"
	ErrCodeHandleReleased    = "HOTLOAD_1103"

	// Watcher errors (1200-1299)
	ErrCodeWatchRoot       = "HOTLOAD_1201"
	ErrCodeWatcherState    = "HOTLOAD_1202"
	ErrCodeWatcherInternal = "HOTLOAD_1203"

	// Instance registry errors (1300-1399)
	ErrCodeInstanceCreation    = "HOTLOAD_1301"
	ErrCodeVersionIncompatible = "HOTLOAD_1302"

	// Configuration errors (1400-1499)
	ErrCodeConfigInvalid = "HOTLOAD_1401"
	ErrCodeConfigFile    = "HOTLOAD_1402"
	ErrCodeConfigWatcher = "HOTLOAD_1403"
)

// Registration error constructors

func NewInvalidPatternError(pattern string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvalidPattern, "Invalid transformer pattern").
		WithUserMessage("The transformer pattern does not compile to a valid matcher").
		WithContext("pattern", pattern).
		WithSeverity("error")
}

func NewUnsupportedParamKindError(handler string, kind ParamKind) *errors.Error {
	return errors.New(ErrCodeUnsupportedParamKind, "Unsupported parameter kind").
		WithUserMessage("Handler declares a parameter kind outside the supported vocabulary").
		WithContext("handler", handler).
		WithContext("param_kind", int(kind)).
		WithSeverity("error")
}

func NewInvalidDescriptorError(handler string, message string) *errors.Error {
	return errors.New(ErrCodeInvalidDescriptor, "Invalid handler descriptor: "+message).
		WithUserMessage("Handler descriptor is malformed and was rejected").
		WithContext("handler", handler).
		WithSeverity("error")
}

func NewDuplicateFactoryError(pluginType string) *errors.Error {
	return errors.New(ErrCodeDuplicateFactory, "Duplicate plugin factory").
		WithUserMessage("A factory for this plugin type is already registered").
		WithContext("plugin_type", pluginType).
		WithSeverity("error")
}

func NewUnknownPluginTypeError(pluginType string) *errors.Error {
	return errors.New(ErrCodeUnknownPluginType, "Unknown plugin type").
		WithUserMessage("No factory is registered for this plugin type").
		WithContext("plugin_type", pluginType).
		WithSeverity("error")
}

// Dispatch and invocation error constructors

func NewDispatchFailureError(pluginType, handler, unitName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDispatchFailure, "Transformer dispatch failure").
		WithUserMessage("A transformation handler failed; its contribution was skipped").
		WithContext("plugin_type", pluginType).
		WithContext("handler", handler).
		WithContext("unit_name", unitName).
		WithSeverity("warning")
}

func NewInvocationFailureError(handler, unitName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvocationFailure, "Handler invocation failure").
		WithUserMessage("Parameter binding or handler call failed; handler treated as no-op").
		WithContext("handler", handler).
		WithContext("unit_name", unitName).
		WithSeverity("warning")
}

func NewHandleReleasedError(unitName string) *errors.Error {
	return errors.New(ErrCodeHandleReleased, "Editable unit handle already released").
		WithUserMessage("The editable unit handle was used after release").
		WithContext("unit_name", unitName).
		WithSeverity("error")
}

// Watcher error constructors

func NewWatchRootError(root string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeWatchRoot, "Watch root registration failed").
		WithUserMessage("The watch root is invalid or inaccessible").
		WithContext("root", root).
		WithSeverity("error")
}

func NewWatcherStateError(message string) *errors.Error {
	return errors.New(ErrCodeWatcherState, "Watcher state error: "+message).
		WithUserMessage("The watcher is not in a state that allows this operation").
		WithSeverity("error")
}

func NewWatcherInternalError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeWatcherInternal, "Watcher internal error: "+message).
		WithUserMessage("The filesystem watcher hit an internal failure").
		WithSeverity("error")
}

// Instance registry error constructors

func NewInstanceCreationError(pluginType, contextID string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInstanceCreation, "Plugin instance creation failed").
		WithUserMessage("The plugin factory failed to produce a usable instance").
		WithContext("plugin_type", pluginType).
		WithContext("context_id", contextID).
		WithSeverity("error")
}

func NewVersionIncompatibleError(pluginType, required, actual string) *errors.Error {
	return errors.New(ErrCodeVersionIncompatible, "Plugin runtime version incompatible").
		WithUserMessage("The plugin requires a different runtime version and was disabled for this context").
		WithContext("plugin_type", pluginType).
		WithContext("required_runtime", required).
		WithContext("actual_runtime", actual).
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigInvalidError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigInvalid, "Invalid agent configuration: "+message).
		WithUserMessage("Agent configuration validation failed").
		WithSeverity("error")
}

func NewConfigFileError(path string, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigFile, "Configuration file error: "+message).
		WithUserMessage("Agent configuration file access failed").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigWatcher, "Configuration watcher error: "+message).
		WithUserMessage("Agent configuration monitoring failed").
		WithSeverity("error")
}
