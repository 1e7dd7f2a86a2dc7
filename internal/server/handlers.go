// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/shell"
	"github.com/veranda-dev/veranda/pkg/errutil"
)

// effect is one queued host-page side effect a plugin requested through its
// utility surface.
type effect struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
	Path     string `json:"path,omitempty"`
}

// slotUtils collects toast and navigation requests between render responses
// so the portal page can apply them.
type slotUtils struct {
	mu      sync.Mutex
	effects []effect
}

func (u *slotUtils) Toast(message, severity string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.effects = append(u.effects, effect{Type: "toast", Message: message, Severity: severity})
}

func (u *slotUtils) Navigate(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.effects = append(u.effects, effect{Type: "navigate", Path: path})
}

// drain returns queued effects and clears the queue.
func (u *slotUtils) drain() []effect {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.effects
	u.effects = nil
	return out
}

// viewPayload is the slot endpoint's response body.
type viewPayload struct {
	State   string      `json:"state"`
	Kind    string      `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
	Render  string      `json:"render,omitempty"`
	View    plugin.View `json:"view,omitempty"`
	Effects []effect    `json:"effects,omitempty"`
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.List(r.Context())
	if err != nil {
		errutil.LogError(s.logger, "plugin listing failed", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "plugin registry unavailable"})
		return
	}
	for i := range records {
		records[i] = records[i].Normalize()
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePluginView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	md, ok := s.findPlugin(r.Context(), id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown plugin " + id})
		return
	}

	if s.enforcer != nil {
		if err := s.enforcer.Grant(md.Key(), md.Capabilities); err != nil {
			errutil.LogError(s.logger, "granting plugin capabilities failed", err)
		}
	}

	sl := s.getSlot(id)
	sl.host.Use(r.Context(), md)

	state := sl.host.State()
	if s.metrics != nil {
		s.metrics.ViewRequestsTotal.WithLabelValues(id, state.Phase.String()).Inc()
	}
	switch state.Phase {
	case plugin.PhaseReady:
		result := sl.shell.Render(state.Manifest.Component, sl.host.Context())
		payload := viewPayload{
			State:   state.Phase.String(),
			View:    result.View,
			Effects: sl.utils.drain(),
		}
		switch result.Kind {
		case shell.ResultCrash:
			payload.Render = "crash"
			payload.Message = result.Message
		case shell.ResultPending:
			payload.Render = "pending"
		default:
			payload.Render = "view"
		}
		writeJSON(w, http.StatusOK, payload)
	case plugin.PhaseError:
		writeJSON(w, http.StatusOK, viewPayload{
			State:   state.Phase.String(),
			Kind:    string(state.ErrKind),
			Message: state.ErrMessage,
		})
	default:
		writeJSON(w, http.StatusOK, viewPayload{State: state.Phase.String()})
	}
}

func (s *Server) handlePluginRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	sl, ok := s.slots[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live slot for plugin " + id})
		return
	}

	// A crash retry and a load retry share one affordance; whichever state
	// the slot is in, the other call is a no-op.
	sl.shell.Retry()
	sl.host.Retry(r.Context())

	state := sl.host.State()
	writeJSON(w, http.StatusOK, viewPayload{
		State:   state.Phase.String(),
		Kind:    string(state.ErrKind),
		Message: state.ErrMessage,
	})
}

// findPlugin resolves a plugin id against the registry listing.
func (s *Server) findPlugin(ctx context.Context, id string) (plugin.Metadata, bool) {
	records, err := s.registry.List(ctx)
	if err != nil {
		errutil.LogError(s.logger, "plugin listing failed", err)
		return plugin.Metadata{}, false
	}
	for _, md := range records {
		if md.Key() == id {
			return md, true
		}
	}
	return plugin.Metadata{}, false
}

// getSlot returns the live slot for a plugin id, creating it on first use.
func (s *Server) getSlot(id string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.slots[id]; ok {
		return sl
	}

	utils := &slotUtils{}
	opts := []plugin.HostOption{
		plugin.WithUtils(utils),
		plugin.WithLogger(s.logger),
	}
	if s.themes != nil {
		opts = append(opts, plugin.WithThemeStore(s.themes))
	}
	if s.clients != nil {
		opts = append(opts, plugin.WithClientFactory(s.clients))
	}

	sl := &slot{
		host:  plugin.NewHost(s.resolver, s.loader, opts...),
		shell: shell.New(id, shell.WithLogger(s.logger)),
		utils: utils,
	}
	s.slots[id] = sl
	return sl
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
