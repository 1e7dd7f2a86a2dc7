// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package capability gates the host functions a plugin bundle may call.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// The runtime's capability names are "notify.toast", "nav.navigate", and
// "api.request". A registry record without an explicit
// capability list is granted "**": plugins run with the host page's full
// ambient privileges unless the registry says otherwise.
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// compiledGrant holds a pattern and its compiled glob for matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities at host-function call time.
//
// Enforcer is safe for concurrent use. The zero value is ready to use
// without calling NewEnforcer.
type Enforcer struct {
	grants map[string][]compiledGrant // plugin id -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{
		grants: make(map[string][]compiledGrant),
	}
}

// Grant configures capabilities for a plugin id. An empty or nil pattern
// list grants everything ("**"). Returns an error if the plugin id is empty
// or any pattern fails to compile; on failure no state is changed.
func (e *Enforcer) Grant(plugin string, patterns []string) error {
	if plugin == "" {
		return errors.New("plugin id cannot be empty")
	}
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	// Compile everything before taking the lock so a bad pattern leaves
	// previous grants intact.
	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return fmt.Errorf("capability %d: empty capability pattern", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return fmt.Errorf("capability %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[plugin] = compiled
	return nil
}

// Revoke unregisters a plugin, removing all its grants. Safe to call for
// unknown plugins or on a zero-value Enforcer.
func (e *Enforcer) Revoke(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		return
	}
	delete(e.grants, plugin)
}

// Check returns true if the plugin holds the requested capability.
// Unknown plugins and empty capability names are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.grants == nil {
		return false
	}
	for _, grant := range e.grants[plugin] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
