// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

// View is the UI tree a plugin component produces, in a shape the portal
// frontend can serialize and mount.
type View map[string]any

// Pending reports whether the view is a suspension marker: the component's
// own async work has not settled yet and the shell should show its nested
// loading fallback.
func (v View) Pending() bool {
	pending, ok := v["pending"].(bool)
	return ok && pending
}

// RenderFunc renders a plugin component against a context. A returned error
// carries a plugin-thrown exception; the containment shell decides what the
// host page shows in that case.
type RenderFunc func(pctx *Context) (View, error)

// Hook is an optional lifecycle callback. A returned error carries an
// exception thrown inside the plugin; callers catch and log it, never
// propagate it.
type Hook func() error

// ConfigHook receives the new config value on host-side config changes.
type ConfigHook func(config map[string]any) error

// Hooks is the optional-capability set a bundle may export. Each field is
// independently optional and independently invocable.
type Hooks struct {
	OnMount        Hook
	OnUnmount      Hook
	OnConfigChange ConfigHook
}

// SelfMetadata is what the plugin code reports about itself, distinct from
// the registry's Metadata record.
type SelfMetadata struct {
	Name    string `json:"name,omitempty"`
	Author  string `json:"author,omitempty"`
	Version string `json:"version,omitempty"`
}

// Manifest is the artifact of a successful bundle load: the renderable
// component plus optional self-reported metadata and lifecycle hooks.
// Created once per load and immutable thereafter; owned by the host for
// the lifetime of that load.
type Manifest struct {
	Component RenderFunc
	Metadata  *SelfMetadata
	Hooks     Hooks
}

// Validate checks the manifest shape. A loaded bundle is arbitrary code;
// a malformed export must fail the load rather than propagate as a silent
// empty render.
func (m *Manifest) Validate() error {
	if m == nil {
		return Errorf(KindParse, "plugin bundle has no default export")
	}
	if m.Component == nil {
		return Errorf(KindParse, "plugin default export is missing a callable component")
	}
	return nil
}
