// panic_recovery.go: Standardized panic recovery utilities with stack trace support
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"fmt"
	"runtime"
)

// withStackRecover returns a panic recovery function that logs panic details
// including full stack trace. It guards the watcher's event-loop goroutine,
// where an unrecovered panic would take down the host process.
//
// The returned function should be called with defer to ensure proper recovery.
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10) // 64KB covers typical plugin stacks
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// safeCall invokes fn and converts a panic into an error carrying the
// recovered value and a captured stack trace. The transform dispatcher and
// handler resolver use it so plugin failures never propagate to the host's
// load threads.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("panic: %v\n%s", r, buf[:n])
		}
	}()

	return fn()
}

// safeNotify delivers a watch event to one listener, recovering and logging
// any panic so one listener's failure never prevents delivery to subsequent
// listeners for the same event.
func safeNotify(logger Logger, listener WatchListener, event WatchEvent) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			logger.Error("Panic recovered in watch listener",
				"panic", r,
				"event", event.String(),
				"stack", string(buf[:n]))
		}
	}()

	listener.OnEvent(event)
}
