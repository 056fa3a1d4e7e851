// errors_test.go: Tests for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	stderrors "errors"
	"testing"

	goerrors "github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors_CarryCodes(t *testing.T) {
	cause := stderrors.New("underlying")

	testCases := []struct {
		name     string
		err      *goerrors.Error
		expected string
	}{
		{"invalid pattern", NewInvalidPatternError("(", cause), ErrCodeInvalidPattern},
		{"unsupported param kind", NewUnsupportedParamKindError("h", ParamKind(99)), ErrCodeUnsupportedParamKind},
		{"invalid descriptor", NewInvalidDescriptorError("h", "missing pattern"), ErrCodeInvalidDescriptor},
		{"duplicate factory", NewDuplicateFactoryError("demo"), ErrCodeDuplicateFactory},
		{"unknown plugin type", NewUnknownPluginTypeError("ghost"), ErrCodeUnknownPluginType},
		{"dispatch failure", NewDispatchFailureError("demo", "h", "a.B", cause), ErrCodeDispatchFailure},
		{"invocation failure", NewInvocationFailureError("h", "a.B", cause), ErrCodeInvocationFailure},
		{"handle released", NewHandleReleasedError("a.B"), ErrCodeHandleReleased},
		{"watch root", NewWatchRootError("/missing", cause), ErrCodeWatchRoot},
		{"watcher state", NewWatcherStateError("not idle"), ErrCodeWatcherState},
		{"watcher internal", NewWatcherInternalError("init failed", cause), ErrCodeWatcherInternal},
		{"instance creation", NewInstanceCreationError("demo", "ctx", cause), ErrCodeInstanceCreation},
		{"version incompatible", NewVersionIncompatibleError("demo", "17", "11"), ErrCodeVersionIncompatible},
		{"config invalid", NewConfigInvalidError("bad level", cause), ErrCodeConfigInvalid},
		{"config file", NewConfigFileError("/etc/agent.yaml", "parse failed", cause), ErrCodeConfigFile},
		{"config watcher", NewConfigWatcherError("already running", cause), ErrCodeConfigWatcher},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.err)
			assert.Equal(t, tc.expected, string(tc.err.Code))
			assert.NotEmpty(t, tc.err.Error())
		})
	}
}

func TestErrorConstructors_PreserveCause(t *testing.T) {
	cause := stderrors.New("root cause")

	err := NewInvalidPatternError("(", cause)
	assert.ErrorIs(t, err, cause)

	err = NewDispatchFailureError("demo", "h", "a.B", cause)
	assert.ErrorIs(t, err, cause)
}
