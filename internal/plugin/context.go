// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import (
	"context"
	"net/http"

	"github.com/veranda-dev/veranda/internal/theme"
)

// Utils is the host-provided utility surface handed to every plugin.
// Besides its scoped API client these are the only host capabilities a
// plugin may invoke.
type Utils interface {
	// Toast shows a transient notification in the host page.
	Toast(message, severity string)
	// Navigate routes the host page to the given path.
	Navigate(path string)
}

// APIResponse is the outcome of a scoped API call, exposed to plugin code.
type APIResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// APICaller is the per-plugin HTTP facade. In proxy mode every call is
// routed through the portal backend; a development override talks to the
// plugin's own backend directly.
type APICaller interface {
	Request(ctx context.Context, method, path string, body []byte, header http.Header) (*APIResponse, error)
	IsProxyMode() bool
}

// Context is the capability bundle injected into a plugin's component at
// render time. It is an immutable value: the host builds a fresh one
// whenever theme, config, or client identity changes, and plugins must not
// hold it beyond their own lifetime.
type Context struct {
	Theme    theme.Theme
	Metadata Metadata
	Config   map[string]any
	API      APICaller
	Utils    Utils
}

// NewContext builds a context from host state. Metadata is normalized and
// the config map is copied so later host-side mutation cannot leak into a
// previously handed-out context.
func NewContext(t theme.Theme, md Metadata, config map[string]any, api APICaller, utils Utils) *Context {
	cfg := make(map[string]any, len(config))
	for k, v := range config {
		cfg[k] = v
	}
	return &Context{
		Theme:    t.Clone(),
		Metadata: md.Normalize(),
		Config:   cfg,
		API:      api,
		Utils:    utils,
	}
}
