// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package theme holds the portal's live theme setting and fans changes out
// to subscribers. Plugin hosts subscribe once and thread the current value
// into each plugin context; they never write back.
package theme

import "sync"

// Mode is the portal color scheme.
type Mode string

// Supported theme modes.
const (
	ModeLight Mode = "light"
	ModeDark  Mode = "dark"
)

// Theme is the value handed to plugins: a mode plus the color tokens the
// portal derives from it.
type Theme struct {
	Mode   Mode              `json:"mode"`
	Tokens map[string]string `json:"tokens"`
}

// Clone returns a deep copy so subscribers can't mutate shared token maps.
func (t Theme) Clone() Theme {
	tokens := make(map[string]string, len(t.Tokens))
	for k, v := range t.Tokens {
		tokens[k] = v
	}
	return Theme{Mode: t.Mode, Tokens: tokens}
}

// defaultTokens are the portal's built-in color tokens per mode.
var defaultTokens = map[Mode]map[string]string{
	ModeLight: {
		"background": "#ffffff",
		"surface":    "#f4f5f7",
		"text":       "#1a1a2e",
		"primary":    "#2563eb",
	},
	ModeDark: {
		"background": "#101014",
		"surface":    "#1c1c24",
		"text":       "#e8e8ee",
		"primary":    "#60a5fa",
	},
}

// Default returns the built-in theme for a mode. Unknown modes fall back
// to light.
func Default(mode Mode) Theme {
	tokens, ok := defaultTokens[mode]
	if !ok {
		mode = ModeLight
		tokens = defaultTokens[ModeLight]
	}
	t := Theme{Mode: mode, Tokens: tokens}
	return t.Clone()
}

// Store is a process-wide theme setting with explicit subscription.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	current Theme
	subs    map[int]chan Theme
	nextID  int
}

// NewStore creates a store initialized to the given theme.
func NewStore(initial Theme) *Store {
	return &Store{
		current: initial.Clone(),
		subs:    make(map[int]chan Theme),
	}
}

// Current returns the active theme.
func (s *Store) Current() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Set replaces the active theme and notifies subscribers. Notification is
// non-blocking: a subscriber that has not drained its channel misses
// intermediate values but always observes the latest via Current.
func (s *Store) Set(t Theme) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = t.Clone()
	for _, ch := range s.subs {
		// Drop the stale buffered value, if any, then deliver the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.current.Clone():
		default:
		}
	}
}

// Subscribe registers a subscriber. It returns the theme at subscription
// time, a channel receiving subsequent values, and a cancel function that
// must be called to release the subscription.
func (s *Store) Subscribe() (Theme, <-chan Theme, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan Theme, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}

	return s.current.Clone(), ch, cancel
}
