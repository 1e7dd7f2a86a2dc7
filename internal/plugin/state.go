// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import "time"

// Phase is the lifecycle phase of one plugin slot.
type Phase int

// Lifecycle phases. Transitions are monotonic within one load attempt:
// Idle -> Loading -> Ready or Error. A plugin identity change always
// restarts from Idle.
const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// validTransitions defines allowed phase transitions as an adjacency list.
// Ready and Error only leave via a reset to Idle (teardown or retry).
var validTransitions = map[Phase]map[Phase]bool{
	PhaseIdle: {
		PhaseLoading: true,
		PhaseError:   true, // pre-load policy gates skip Loading
	},
	PhaseLoading: {
		PhaseReady: true,
		PhaseError: true,
	},
	PhaseReady: {
		PhaseIdle: true,
	},
	PhaseError: {
		PhaseIdle: true,
	},
}

// ValidTransition reports whether moving from one phase to another is allowed.
func ValidTransition(from, to Phase) bool {
	allowed, exists := validTransitions[from][to]
	return exists && allowed
}

// State is the tagged union describing one plugin slot. Exactly one variant
// is active: the Manifest/LoadedAt fields are set only in PhaseReady, the
// ErrKind/ErrMessage fields only in PhaseError.
type State struct {
	Phase      Phase
	Manifest   *Manifest
	LoadedAt   time.Time
	ErrKind    ErrorKind
	ErrMessage string
}

// IdleState returns the no-load-attempted state.
func IdleState() State {
	return State{Phase: PhaseIdle}
}

// LoadingState returns the load-in-flight state.
func LoadingState() State {
	return State{Phase: PhaseLoading}
}

// ReadyState returns the terminal-success state holding the manifest.
func ReadyState(m *Manifest, loadedAt time.Time) State {
	return State{Phase: PhaseReady, Manifest: m, LoadedAt: loadedAt}
}

// ErrorState returns the terminal-failure state.
func ErrorState(kind ErrorKind, message string) State {
	return State{Phase: PhaseError, ErrKind: kind, ErrMessage: message}
}

// FromError builds the terminal-failure state for a load-path error,
// classifying its kind and keeping the original message for display.
func FromError(err error) State {
	return ErrorState(Classify(err), err.Error())
}
