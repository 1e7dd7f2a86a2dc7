// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package goja

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// refTable tracks short-lived bundle references: each load registers its
// source under a synthetic script name used for compilation and stack
// traces, and must release it once instantiation settles. A reference must
// never outlive the load that acquired it.
type refTable struct {
	mu      sync.Mutex
	entries map[string]string
}

func newRefTable() *refTable {
	return &refTable{entries: make(map[string]string)}
}

// acquire registers source text and returns its reference.
func (t *refTable) acquire(source string) *bundleRef {
	name := "bundle://" + ulid.Make().String() + ".js"

	t.mu.Lock()
	t.entries[name] = source
	t.mu.Unlock()

	return &bundleRef{table: t, name: name}
}

// size reports live references; used to verify release.
func (t *refTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// bundleRef is one registered bundle source. Release is idempotent.
type bundleRef struct {
	table *refTable
	name  string
	once  sync.Once
}

// Name is the synthetic script name for this bundle.
func (r *bundleRef) Name() string {
	return r.name
}

// Release drops the reference from the table.
func (r *bundleRef) Release() {
	r.once.Do(func() {
		r.table.mu.Lock()
		delete(r.table.entries, r.name)
		r.table.mu.Unlock()
	})
}
