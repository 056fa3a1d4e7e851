// deferred.go: Deferred execution against a loading context
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

// DeferredExecutor runs plugin-supplied work against a loading context. It is
// the deferred-context vocabulary kind: handlers that need to touch code
// living inside the context they were invoked for (rather than the agent's
// own code) schedule that work here instead of doing it inline.
//
// Execution is synchronous and panic-isolated; a failing task is logged and
// reported to the caller but never propagates further.
type DeferredExecutor struct {
	ctx    *LoadingContext
	logger Logger
}

// NewDeferredExecutor creates an executor bound to the given loading context.
func NewDeferredExecutor(ctx *LoadingContext, logger Logger) *DeferredExecutor {
	return &DeferredExecutor{
		ctx:    ctx,
		logger: NewLogger(logger),
	}
}

// Context returns the loading context the executor is bound to.
func (e *DeferredExecutor) Context() *LoadingContext {
	return e.ctx
}

// Execute runs fn with the bound loading context, converting a panic into an
// error. The error is logged and returned so callers can decide whether the
// failure matters to them.
func (e *DeferredExecutor) Execute(fn func(ctx *LoadingContext) error) error {
	err := safeCall(func() error {
		return fn(e.ctx)
	})
	if err != nil {
		e.logger.Warn("Deferred execution failed",
			"context", e.ctx.String(),
			"error", err)
	}
	return err
}
