// editable_unit.go: Mutable code unit handle with exactly-once release
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"sync"
	"sync/atomic"
)

// EditableUnit is a mutable handle over a code unit's binary form, handed to
// handlers that declare the editable-unit parameter kind. The resolver builds
// it lazily (only when declared) and guarantees release on every exit path —
// normal return, handler error or panic — exactly once.
//
// After release the handle rejects all access; a handler must not retain it
// beyond the invocation it was bound for.
type EditableUnit struct {
	name string

	mu       sync.Mutex
	bytes    []byte
	modified bool

	released atomic.Bool
}

// NewEditableUnit creates a handle over a copy of the given bytes. Handlers
// mutate the copy; the original dispatch buffer is never aliased.
func NewEditableUnit(name string, bytes []byte) *EditableUnit {
	owned := make([]byte, len(bytes))
	copy(owned, bytes)

	return &EditableUnit{
		name:  name,
		bytes: owned,
	}
}

// Name returns the fully qualified unit name the handle was built for.
func (u *EditableUnit) Name() string {
	return u.name
}

// Bytes returns the handle's current binary form.
func (u *EditableUnit) Bytes() ([]byte, error) {
	if u.released.Load() {
		return nil, NewHandleReleasedError(u.name)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]byte, len(u.bytes))
	copy(out, u.bytes)
	return out, nil
}

// SetBytes replaces the handle's binary form and marks it modified.
func (u *EditableUnit) SetBytes(b []byte) error {
	if u.released.Load() {
		return NewHandleReleasedError(u.name)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.bytes = make([]byte, len(b))
	copy(u.bytes, b)
	u.modified = true
	return nil
}

// Modified reports whether SetBytes was called on the handle.
func (u *EditableUnit) Modified() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.modified
}

// Release invalidates the handle. The first call wins; subsequent calls are
// no-ops, so a handler releasing a handle it returned does not conflict with
// the resolver's own cleanup.
func (u *EditableUnit) Release() {
	u.released.CompareAndSwap(false, true)
}

// Released reports whether the handle has been released.
func (u *EditableUnit) Released() bool {
	return u.released.Load()
}

// serialize returns the final bytes for result adoption and then releases the
// handle. Returns an error if the handle was already released.
func (u *EditableUnit) serialize() ([]byte, error) {
	out, err := u.Bytes()
	if err != nil {
		return nil, err
	}
	u.Release()
	return out, nil
}
