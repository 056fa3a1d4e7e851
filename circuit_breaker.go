// circuit_breaker.go: Fail-fast protection for repeatedly failing transformers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// CircuitBreakerState represents the current operational state of a circuit breaker.
//
// Every transformer registration carries its own breaker. A handler that fails
// repeatedly (errors or panics during dispatch) trips its breaker and is
// skipped — fail fast — until the recovery timeout elapses, when a limited
// number of probe invocations decide whether it is healthy again. Dispatch to
// other handlers is never affected.
//
// State behaviors:
//   - StateClosed: normal operation, the handler is invoked
//   - StateOpen: breaker tripped, the handler is skipped without invocation
//   - StateHalfOpen: testing phase, limited invocations probe recovery
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig defines thresholds and timeouts for handler breakers.
type CircuitBreakerConfig struct {
	// Enabled turns breaker protection on. When false every invocation is
	// allowed and recording is a no-op.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// FailureThreshold is the failure count that trips the breaker.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`

	// MinRequestThreshold is the minimum number of invocations before the
	// failure rate is considered meaningful.
	MinRequestThreshold int `json:"min_request_threshold" yaml:"min_request_threshold"`

	// SuccessThreshold is the number of half-open successes that re-close
	// the breaker.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
}

// DefaultCircuitBreakerConfig returns conservative defaults. Breakers are
// disabled by default; a host opts in through AgentConfig.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:             false,
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		MinRequestThreshold: 3,
		SuccessThreshold:    2,
	}
}

// CircuitBreaker implements the circuit breaker pattern using atomic counters
// for thread safety. Dispatch runs on host-owned load threads; AllowRequest,
// RecordSuccess and RecordFailure may all be called concurrently.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state           atomic.Int32 // CircuitBreakerState
	failureCount    atomic.Int64
	successCount    atomic.Int64
	requestCount    atomic.Int64
	lastFailureTime atomic.Int64 // unix nanos

	// serializes state transitions
	mu sync.Mutex
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		config: config,
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

// AllowRequest reports whether an invocation should proceed.
//
//   - StateClosed: always allows
//   - StateOpen: blocks until the recovery timeout expires
//   - StateHalfOpen: allows a limited number of probes
func (cb *CircuitBreaker) AllowRequest() bool {
	if !cb.config.Enabled {
		return true
	}

	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		return true

	case StateOpen:
		if cb.shouldAttemptRecovery() {
			cb.mu.Lock()
			// double-check after acquiring the lock
			if CircuitBreakerState(cb.state.Load()) == StateOpen && cb.shouldAttemptRecovery() {
				cb.state.Store(int32(StateHalfOpen))
				cb.resetCounters()
			}
			cb.mu.Unlock()
			return CircuitBreakerState(cb.state.Load()) == StateHalfOpen
		}
		return false

	case StateHalfOpen:
		return cb.requestCount.Load() < int64(cb.config.SuccessThreshold)

	default:
		return false
	}
}

// RecordSuccess records a successful invocation. In the half-open state
// enough consecutive successes re-close the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.successCount.Add(1)
	cb.requestCount.Add(1)

	if CircuitBreakerState(cb.state.Load()) == StateHalfOpen {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		if cb.successCount.Load() >= int64(cb.config.SuccessThreshold) {
			cb.state.Store(int32(StateClosed))
			cb.resetCounters()
		}
	}
}

// RecordFailure records a failed invocation and may trip the breaker. A
// failure in the half-open state reopens it immediately once the threshold
// check passes.
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.failureCount.Add(1)
	cb.requestCount.Add(1)
	cb.lastFailureTime.Store(timecache.CachedTimeNano())

	currentState := CircuitBreakerState(cb.state.Load())
	if currentState == StateClosed || currentState == StateHalfOpen {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		if cb.shouldOpenCircuit() {
			cb.state.Store(int32(StateOpen))
			// counters survive opening; they feed the stats snapshot
		}
	}
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	return CircuitBreakerState(cb.state.Load())
}

// GetStats returns a consistent snapshot for monitoring.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	return CircuitBreakerStats{
		State:        cb.GetState(),
		FailureCount: cb.failureCount.Load(),
		SuccessCount: cb.successCount.Load(),
		RequestCount: cb.requestCount.Load(),
		LastFailure:  time.Unix(0, cb.lastFailureTime.Load()),
	}
}

// Reset forcibly closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state.Store(int32(StateClosed))
	cb.resetCounters()
}

func (cb *CircuitBreaker) shouldAttemptRecovery() bool {
	lastFailure := cb.lastFailureTime.Load()
	if lastFailure == 0 {
		return true
	}

	return time.Since(time.Unix(0, lastFailure)) >= cb.config.RecoveryTimeout
}

func (cb *CircuitBreaker) shouldOpenCircuit() bool {
	failureCount := cb.failureCount.Load()
	requestCount := cb.requestCount.Load()

	if requestCount < int64(cb.config.MinRequestThreshold) {
		return failureCount >= int64(cb.config.FailureThreshold)
	}

	return failureCount >= int64(cb.config.FailureThreshold)
}

// resetCounters resets all counters (call with lock held).
func (cb *CircuitBreaker) resetCounters() {
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
	cb.requestCount.Store(0)
}

// CircuitBreakerStats is a point-in-time snapshot of breaker activity.
type CircuitBreakerStats struct {
	State        CircuitBreakerState `json:"state"`
	FailureCount int64               `json:"failure_count"`
	SuccessCount int64               `json:"success_count"`
	RequestCount int64               `json:"request_count"`
	LastFailure  time.Time           `json:"last_failure"`
}
