// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package shell is the render-time error boundary around one plugin slot.
// A crash in the plugin's component replaces just that subtree with a crash
// display; the rest of the portal page keeps rendering. Retrying a crash
// clears the boundary only, it never re-runs the host's load.
package shell

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/veranda-dev/veranda/internal/plugin"
)

// ResultKind discriminates what the slot should show after a render pass.
type ResultKind int

const (
	// ResultView carries a settled view tree.
	ResultView ResultKind = iota
	// ResultPending means the component is suspending on its own async
	// work; the slot shows the nested loading fallback.
	ResultPending
	// ResultCrash means the component threw; the slot shows the crash
	// display with a retry affordance.
	ResultCrash
)

// Result is the outcome of one contained render pass.
type Result struct {
	Kind    ResultKind
	View    plugin.View
	Message string
}

// Shell contains render-time failures for one plugin slot.
type Shell struct {
	pluginID string
	logger   *slog.Logger

	mu       sync.Mutex
	crashed  bool
	crashMsg string
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) { s.logger = l }
}

// New builds a shell for one plugin slot.
func New(pluginID string, opts ...Option) *Shell {
	s := &Shell{
		pluginID: pluginID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Crashed reports whether the boundary is holding a caught crash.
func (s *Shell) Crashed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crashed
}

// Retry clears the caught-crash flag so the next Render call reaches the
// component again. It deliberately touches nothing else: the host's load
// state, manifest, and context all survive a render crash.
func (s *Shell) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crashed = false
	s.crashMsg = ""
}

// Render runs one contained render pass. While a crash is held, the
// component is not called again until Retry clears the boundary.
func (s *Shell) Render(render plugin.RenderFunc, pctx *plugin.Context) Result {
	s.mu.Lock()
	if s.crashed {
		msg := s.crashMsg
		s.mu.Unlock()
		return Result{Kind: ResultCrash, Message: msg}
	}
	s.mu.Unlock()

	view, err := s.renderSafe(render, pctx)
	if err != nil {
		s.mu.Lock()
		s.crashed = true
		s.crashMsg = err.Error()
		s.mu.Unlock()

		plugin.RecordRenderCrash(s.pluginID)
		s.logger.Error("plugin render crashed",
			"plugin", s.pluginID,
			"error", err)
		return Result{Kind: ResultCrash, Message: err.Error()}
	}

	if view.Pending() {
		return Result{Kind: ResultPending, View: view}
	}
	return Result{Kind: ResultView, View: view}
}

// renderSafe invokes the component, converting panics to errors. Loaded
// bundles are arbitrary code and a panic must stay inside the boundary.
func (s *Shell) renderSafe(render plugin.RenderFunc, pctx *plugin.Context) (view plugin.View, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin component panicked: %v", r)
		}
	}()
	if render == nil {
		return nil, fmt.Errorf("plugin has no renderable component")
	}
	return render(pctx)
}
