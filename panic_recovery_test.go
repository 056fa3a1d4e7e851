// panic_recovery_test.go: Tests for panic recovery utilities
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeCall_PassesThroughResults(t *testing.T) {
	assert.NoError(t, safeCall(func() error { return nil }))

	sentinel := errors.New("handler error")
	assert.ErrorIs(t, safeCall(func() error { return sentinel }), sentinel)
}

func TestSafeCall_ConvertsPanicToError(t *testing.T) {
	err := safeCall(func() error {
		panic("something went wrong")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "something went wrong")
	assert.Contains(t, err.Error(), "goroutine", "error must carry the stack trace")
}

func TestWithStackRecover_LogsPanic(t *testing.T) {
	logger := NewTestLogger()

	func() {
		defer withStackRecover(logger)()
		panic("background task exploded")
	}()

	assert.True(t, logger.HasMessage("ERROR", "Panic recovered in goroutine"))
}

func TestWithStackRecover_NoPanicNoLog(t *testing.T) {
	logger := NewTestLogger()

	func() {
		defer withStackRecover(logger)()
	}()

	assert.Equal(t, 0, logger.CountLevel("ERROR"))
}

func TestSafeNotify_IsolatesListenerPanic(t *testing.T) {
	logger := NewTestLogger()
	listener := WatchListenerFunc(func(event WatchEvent) {
		panic("listener exploded")
	})

	assert.NotPanics(t, func() {
		safeNotify(logger, listener, WatchEvent{Kind: EventModify, Path: "/p"})
	})
	assert.True(t, logger.HasMessage("ERROR", "Panic recovered in watch listener"))
}
