// transformer.go: Pattern registry and transform dispatch engine
//
// The dispatcher is the stability core of the agent: it runs on host-owned
// load threads, matches unit names against registered patterns and threads
// the unit's bytes through the matching handler chain in registration order.
// A handler failure of any sort is recovered, logged and treated as a no-op
// for that handler only — a broken plugin must never break the host's load
// path.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// TransformFunc is a pattern-matched transformation callback. It receives the
// current (possibly already transformed) bytes and returns the replacement
// bytes, or nil to leave the unit unchanged. Errors and panics are recovered
// by the dispatcher.
type TransformFunc func(loadCtx *LoadingContext, unitName string, existing *CodeUnit, scope *ProtectionScope, bytes []byte) ([]byte, error)

// transformerRegistration is one ordered entry of the handler chain.
type transformerRegistration struct {
	owner    string // plugin type or "host"
	name     string // handler name for logs
	pattern  *regexp.Regexp
	source   string // original pattern text
	onDefine bool
	onReload bool
	handler  TransformFunc

	// swapped atomically by ApplyBreakerConfig while Dispatch reads it on
	// host load threads
	breaker atomic.Pointer[CircuitBreaker]
}

// DispatcherStats is a point-in-time snapshot of dispatch activity.
type DispatcherStats struct {
	TotalDispatches  int64     `json:"total_dispatches"`
	UnitsTransformed int64     `json:"units_transformed"`
	HandlerFailures  int64     `json:"handler_failures"`
	SyntheticSkips   int64     `json:"synthetic_skips"`
	Registrations    int       `json:"registrations"`
	LastDispatch     time.Time `json:"last_dispatch"`
}

// TransformDispatcher matches code-unit names against registered patterns and
// runs the matching handler chain.
//
// Registrations are kept in registration order with no deduplication; a later
// registration with the same pattern adds another chain entry. Dispatch may
// run concurrently from multiple load threads: the registration list takes an
// RWMutex, counters are atomic.
type TransformDispatcher struct {
	mu            sync.RWMutex
	registrations []*transformerRegistration

	syntheticPred atomic.Pointer[SyntheticPredicate]
	breakerConfig atomic.Pointer[CircuitBreakerConfig]

	totalDispatches  atomic.Int64
	unitsTransformed atomic.Int64
	handlerFailures  atomic.Int64
	syntheticSkips   atomic.Int64
	lastDispatchNano atomic.Int64

	logger Logger
}

// NewTransformDispatcher creates a dispatcher with the given synthetic-unit
// predicate and breaker policy. A nil predicate means no name is synthetic.
func NewTransformDispatcher(pred SyntheticPredicate, breakerConfig CircuitBreakerConfig, logger any) *TransformDispatcher {
	d := &TransformDispatcher{
		logger: NewLogger(logger),
	}
	if pred == nil {
		pred = func(string) bool { return false }
	}
	d.syntheticPred.Store(&pred)
	d.breakerConfig.Store(&breakerConfig)
	return d
}

// RegisterTransformer appends a host-owned transformer to the chain. The
// pattern must compile to a valid matcher; an invalid pattern rejects only
// this registration. Matching is against the full unit name.
func (d *TransformDispatcher) RegisterTransformer(pattern string, onDefine, onReload bool, handler TransformFunc) error {
	return d.register("host", pattern, pattern, onDefine, onReload, handler)
}

// register appends a transformer on behalf of the named owner.
func (d *TransformDispatcher) register(owner, name, pattern string, onDefine, onReload bool, handler TransformFunc) error {
	if handler == nil {
		return NewInvalidDescriptorError(name, "transformer handler is required")
	}

	// anchor so the pattern must cover the whole unit name
	compiled, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return NewInvalidPatternError(pattern, err)
	}

	reg := &transformerRegistration{
		owner:    owner,
		name:     name,
		pattern:  compiled,
		source:   pattern,
		onDefine: onDefine,
		onReload: onReload,
		handler:  handler,
	}
	reg.breaker.Store(NewCircuitBreaker(*d.breakerConfig.Load()))

	d.mu.Lock()
	d.registrations = append(d.registrations, reg)
	count := len(d.registrations)
	d.mu.Unlock()

	d.logger.Debug("Registered transformer",
		"owner", owner,
		"handler", name,
		"pattern", pattern,
		"on_define", onDefine,
		"on_reload", onReload,
		"chain_length", count)

	return nil
}

// Dispatch threads the unit's bytes through every matching registration in
// order and returns the final bytes. It never returns an error and never
// panics: plugin failures degrade to unchanged bytes for the failing handler.
//
//  1. Synthetic units (by predicate or by the existing unit's marker) skip
//     the chain entirely.
//  2. A registration is skipped when its define/reload flags do not cover the
//     call's mode: existing == nil is a definition, existing != nil a reload.
//  3. Each invoked handler receives the current bytes; a non-nil result
//     replaces them for the rest of the chain.
func (d *TransformDispatcher) Dispatch(loadCtx *LoadingContext, unitName string, existing *CodeUnit, scope *ProtectionScope, bytes []byte) []byte {
	d.totalDispatches.Add(1)
	d.lastDispatchNano.Store(timecache.CachedTimeNano())

	if pred := *d.syntheticPred.Load(); pred(unitName) || (existing != nil && existing.Synthetic) {
		d.syntheticSkips.Add(1)
		d.logger.Debug("Skipping synthetic unit", "unit", unitName)
		return bytes
	}

	d.mu.RLock()
	chain := make([]*transformerRegistration, len(d.registrations))
	copy(chain, d.registrations)
	d.mu.RUnlock()

	current := bytes
	transformed := false

	for _, reg := range chain {
		if !reg.pattern.MatchString(unitName) {
			continue
		}
		if existing == nil && !reg.onDefine {
			continue
		}
		if existing != nil && !reg.onReload {
			continue
		}

		breaker := reg.breaker.Load()
		if !breaker.AllowRequest() {
			d.logger.Warn("Transformer skipped, circuit breaker open",
				"owner", reg.owner,
				"handler", reg.name,
				"unit", unitName)
			continue
		}

		var result []byte
		err := safeCall(func() error {
			var hErr error
			result, hErr = reg.handler(loadCtx, unitName, existing, scope, current)
			return hErr
		})
		if err != nil {
			d.handlerFailures.Add(1)
			breaker.RecordFailure()
			d.logger.Error("Transformer failed, contribution skipped",
				"owner", reg.owner,
				"handler", reg.name,
				"unit", unitName,
				"context", loadCtx.String(),
				"error", NewDispatchFailureError(reg.owner, reg.name, unitName, err))
			continue
		}

		breaker.RecordSuccess()
		if result != nil {
			current = result
			transformed = true
		}
	}

	if transformed {
		d.unitsTransformed.Add(1)
	}
	return current
}

// SetSyntheticPredicate swaps the synthetic-unit predicate. Used by config
// hot reload; in-flight dispatches keep the predicate they started with.
func (d *TransformDispatcher) SetSyntheticPredicate(pred SyntheticPredicate) {
	if pred == nil {
		pred = func(string) bool { return false }
	}
	d.syntheticPred.Store(&pred)
}

// ApplyBreakerConfig swaps the breaker policy for existing and future
// registrations. Existing breakers restart in the closed state.
func (d *TransformDispatcher) ApplyBreakerConfig(cfg CircuitBreakerConfig) {
	d.breakerConfig.Store(&cfg)

	d.mu.RLock()
	chain := make([]*transformerRegistration, len(d.registrations))
	copy(chain, d.registrations)
	d.mu.RUnlock()

	for _, reg := range chain {
		reg.breaker.Store(NewCircuitBreaker(cfg))
	}
}

// Stats returns a snapshot of dispatch activity.
func (d *TransformDispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	count := len(d.registrations)
	d.mu.RUnlock()

	return DispatcherStats{
		TotalDispatches:  d.totalDispatches.Load(),
		UnitsTransformed: d.unitsTransformed.Load(),
		HandlerFailures:  d.handlerFailures.Load(),
		SyntheticSkips:   d.syntheticSkips.Load(),
		Registrations:    count,
		LastDispatch:     time.Unix(0, d.lastDispatchNano.Load()),
	}
}
