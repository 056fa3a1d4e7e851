// types.go: Common data types and structures for the hot-load agent
//
// This file contains the shared data model used throughout the agent: loading
// contexts, code units, protection scopes and filesystem watch events. These
// types are deliberately plain values so they can cross the host boundary
// without pulling in any agent internals.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"strings"
	"time"
)

// LoadingContext identifies an isolation boundary that code units are loaded
// within (the classloader-equivalent of the host runtime).
//
// The agent treats contexts as opaque stable identities: registries key their
// state by ID and never retain anything beyond what the host hands them. When
// the host retires a context it must call Agent.RetireContext so per-context
// plugin instances are released; the agent performs no garbage-collector
// driven cleanup of its own.
type LoadingContext struct {
	// ID is the stable unique identity of the context. Two contexts with the
	// same ID are the same context.
	ID string

	// Name is an optional human-readable label used only for logging.
	Name string
}

// String returns a log-friendly representation of the context.
func (lc *LoadingContext) String() string {
	if lc == nil {
		return "<nil-context>"
	}
	if lc.Name != "" {
		return lc.Name + " (" + lc.ID + ")"
	}
	return lc.ID
}

// CodeUnit is one loadable compiled artifact identified by a fully qualified
// name, together with its binary form and the context it belongs to.
type CodeUnit struct {
	// Name is the fully qualified unit name (e.g. "com.example.Service").
	Name string

	// Bytes is the opaque binary representation of the unit.
	Bytes []byte

	// Context is the loading context the unit is (being) loaded within.
	Context *LoadingContext

	// Synthetic marks generated units that must never enter a handler chain.
	Synthetic bool
}

// ProtectionScope carries host-defined protection metadata for a code unit
// load (the protection-domain equivalent). The agent never interprets it; it
// only forwards the scope to handlers that declare interest.
type ProtectionScope struct {
	// Origin describes where the unit was loaded from.
	Origin string

	// Attributes holds arbitrary host-defined key/value metadata.
	Attributes map[string]string
}

// EventKind classifies a filesystem watch event.
type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventDelete
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// WatchEvent is a correlated filesystem event delivered to listeners whose
// registered root is a path-prefix of the event's path.
type WatchEvent struct {
	// Kind is the mapped event classification.
	Kind EventKind

	// Path is the absolute filesystem path the event occurred on.
	Path string

	// IsFile reports whether the path currently refers to a regular file.
	// For delete events this is false since the path no longer exists.
	IsFile bool

	// IsDir reports whether the path currently refers to a directory.
	IsDir bool

	// Time is when the agent observed the event.
	Time time.Time
}

// String returns a log-friendly representation of the event.
func (e WatchEvent) String() string {
	return e.Kind.String() + " " + e.Path
}

// WatchListener receives correlated filesystem events. Listeners run
// synchronously on the watcher's single event goroutine, so a slow listener
// stalls subsequent delivery.
type WatchListener interface {
	OnEvent(event WatchEvent)
}

// WatchListenerFunc adapts a plain function to the WatchListener interface.
type WatchListenerFunc func(event WatchEvent)

// OnEvent implements WatchListener.
func (f WatchListenerFunc) OnEvent(event WatchEvent) { f(event) }

// SyntheticPredicate decides whether a unit name denotes a synthetic
// (generated) unit that must be excluded from transformation. The predicate
// is pluggable so hosts with different generation schemes can supply their
// own detection.
type SyntheticPredicate func(unitName string) bool

// MarkerSyntheticPredicate builds a SyntheticPredicate that flags unit names
// containing any of the given substrings. An empty marker list yields a
// predicate that never matches.
func MarkerSyntheticPredicate(markers []string) SyntheticPredicate {
	// copy so later config mutations cannot race the dispatcher
	owned := make([]string, len(markers))
	copy(owned, markers)

	return func(unitName string) bool {
		for _, m := range owned {
			if m != "" && strings.Contains(unitName, m) {
				return true
			}
		}
		return false
	}
}
