// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veranda-dev/veranda/internal/theme"
)

// SourceResolver obtains raw bundle source text for a metadata record,
// either directly or through the registry API.
type SourceResolver interface {
	Resolve(ctx context.Context, md Metadata) (string, error)
}

// BundleLoader turns raw source text into a validated manifest.
type BundleLoader interface {
	Load(ctx context.Context, source string) (*Manifest, error)
}

// ClientFactory builds the scoped API client for a plugin record.
type ClientFactory func(md Metadata) APICaller

// noopUtils is the fallback utility surface when the host page wires none.
type noopUtils struct{}

func (noopUtils) Toast(string, string) {}
func (noopUtils) Navigate(string)      {}

// Host drives one visible plugin slot through its lifecycle. Each slot owns
// its state exclusively; two views of the same plugin get independent hosts.
//
// Loads run in the caller's goroutine and may suspend on network; state
// commits are token-checked so a late result for a superseded identity is
// discarded rather than applied.
type Host struct {
	resolver SourceResolver
	loader   BundleLoader
	clients  ClientFactory
	utils    Utils
	logger   *slog.Logger
	tracer   trace.Tracer

	themeStore  *theme.Store
	themeCancel func()

	mu       sync.Mutex
	identity string
	metadata Metadata
	config   map[string]any
	theme    theme.Theme
	state    State
	pctx     *Context
	api      APICaller
	attempt  uint64
	mounted  bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithUtils sets the utility surface handed to plugins.
func WithUtils(u Utils) HostOption {
	return func(h *Host) { h.utils = u }
}

// WithClientFactory sets how scoped API clients are built per plugin.
func WithClientFactory(f ClientFactory) HostOption {
	return func(h *Host) { h.clients = f }
}

// WithConfig sets the initial host-supplied plugin config.
func WithConfig(config map[string]any) HostOption {
	return func(h *Host) { h.config = config }
}

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// WithThemeStore subscribes the host to the portal theme store. The host
// only reads the store; plugins observe theme changes through rebuilt
// contexts. Call Close to release the subscription.
func WithThemeStore(s *theme.Store) HostOption {
	return func(h *Host) { h.themeStore = s }
}

// NewHost creates a plugin slot host.
func NewHost(resolver SourceResolver, loader BundleLoader, opts ...HostOption) *Host {
	h := &Host{
		resolver: resolver,
		loader:   loader,
		utils:    noopUtils{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("veranda/plugin"),
		theme:    theme.Default(theme.ModeLight),
		state:    IdleState(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.themeStore != nil {
		initial, ch, cancel := h.themeStore.Subscribe()
		h.theme = initial
		h.themeCancel = cancel
		go func() {
			for t := range ch {
				h.SetTheme(t)
			}
		}()
	}
	return h
}

// State returns the current slot state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Context returns the context plugins render against, or nil before the
// first Ready transition.
func (h *Host) Context() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pctx
}

// Use points the slot at a plugin record and loads it if needed. The same
// identity is loaded at most once; while it is Loading, Ready, or Error the
// call is a no-op. A different identity tears the current plugin down and
// restarts from Idle.
func (h *Host) Use(ctx context.Context, md Metadata) {
	key := md.Key()

	h.mu.Lock()
	if h.identity == key && h.state.Phase != PhaseIdle {
		h.mu.Unlock()
		return
	}
	var onUnmount Hook
	var previous string
	if h.identity != "" && h.identity != key {
		onUnmount, previous = h.teardownLocked()
	}
	h.identity = key
	h.metadata = md.Normalize()
	h.state = IdleState()
	h.mu.Unlock()

	if onUnmount != nil {
		h.callHook(previous, "onUnmount", onUnmount)
	}

	h.startLoad(ctx)
}

// Retry re-runs the load for the current identity. It is meaningful only in
// the Error phase; any other phase is a no-op.
func (h *Host) Retry(ctx context.Context) {
	h.mu.Lock()
	if h.state.Phase != PhaseError {
		h.mu.Unlock()
		return
	}
	h.state = IdleState()
	h.mu.Unlock()

	h.startLoad(ctx)
}

// startLoad runs the guarded Idle -> Loading -> Ready|Error path for the
// slot's current metadata.
func (h *Host) startLoad(ctx context.Context) {
	h.mu.Lock()
	if h.state.Phase != PhaseIdle {
		h.mu.Unlock()
		return
	}
	md := h.metadata
	key := h.identity

	// Pre-load policy gates: no resolution is attempted for these.
	if !md.IsEnabled() {
		h.state = ErrorState(KindDisabled, "Plugin is disabled")
		h.mu.Unlock()
		RecordLoad(key, string(KindDisabled))
		return
	}
	if !md.HasLoadLocation() {
		h.state = ErrorState(KindMissingConfig, "Bundle URL is missing")
		h.mu.Unlock()
		RecordLoad(key, string(KindMissingConfig))
		return
	}

	h.attempt++
	token := h.attempt
	h.state = LoadingState()
	h.mu.Unlock()

	ctx, span := h.tracer.Start(ctx, "plugin.load",
		trace.WithAttributes(attribute.String("plugin.id", key)))
	defer span.End()

	started := time.Now()
	manifest, err := h.runLoad(ctx, md)

	h.mu.Lock()
	// A stale result for a superseded or torn-down slot must never touch
	// state that now belongs to a different plugin identity.
	if token != h.attempt || h.identity != key || h.state.Phase != PhaseLoading {
		h.mu.Unlock()
		h.logger.Debug("discarding stale plugin load result", "plugin", key)
		return
	}

	if err != nil {
		span.RecordError(err)
		h.state = FromError(err)
		kind := h.state.ErrKind
		h.mu.Unlock()
		RecordLoad(key, string(kind))
		h.logger.Warn("plugin load failed",
			"plugin", key,
			"kind", kind,
			"error", err)
		return
	}

	h.state = ReadyState(manifest, time.Now())
	h.api = h.buildClient(md)
	h.pctx = NewContext(h.theme, md, h.config, h.api, h.utils)
	h.mounted = true
	onMount := manifest.Hooks.OnMount
	h.mu.Unlock()

	RecordLoad(key, "ready")
	RecordLoadDuration(key, time.Since(started))
	h.logger.Info("plugin ready",
		"plugin", key,
		"version", md.Version)

	// Mounting partially succeeded even if the hook throws; the UI still
	// renders, so the throw is contained here.
	if onMount != nil {
		h.callHook(key, "onMount", onMount)
	}
}

// runLoad performs resolve + load + validate without holding the host lock.
func (h *Host) runLoad(ctx context.Context, md Metadata) (*Manifest, error) {
	source, err := h.resolver.Resolve(ctx, md)
	if err != nil {
		return nil, err
	}
	manifest, err := h.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// buildClient constructs the scoped API client for a record, if a factory
// is wired.
func (h *Host) buildClient(md Metadata) APICaller {
	if h.clients == nil {
		return nil
	}
	return h.clients(md)
}

// Teardown unloads the current plugin: OnUnmount is invoked at most once
// per Ready instance, the manifest reference is discarded, and the slot
// returns to Idle. Safe to call repeatedly.
func (h *Host) Teardown() {
	h.mu.Lock()
	onUnmount, key := h.teardownLocked()
	h.mu.Unlock()

	if onUnmount != nil {
		h.callHook(key, "onUnmount", onUnmount)
	}
}

// Close tears the slot down and releases the theme subscription.
func (h *Host) Close() {
	h.Teardown()
	if h.themeCancel != nil {
		h.themeCancel()
	}
}

// teardownLocked resets the slot and returns the unmount hook to run, if
// any. Callers hold h.mu and must invoke the hook after releasing it so a
// blocking hook cannot wedge the host lock.
func (h *Host) teardownLocked() (Hook, string) {
	// Invalidate any in-flight load so its late result is discarded.
	h.attempt++

	var onUnmount Hook
	if h.state.Phase == PhaseReady && h.mounted && h.state.Manifest != nil {
		onUnmount = h.state.Manifest.Hooks.OnUnmount
	}
	key := h.identity
	h.mounted = false
	h.state = IdleState()
	h.pctx = nil
	h.api = nil

	return onUnmount, key
}

// SetConfig replaces the host-supplied config. While Ready this rebuilds
// the context and notifies the plugin through OnConfigChange; it never
// resets the load state.
func (h *Host) SetConfig(config map[string]any) {
	cfg := make(map[string]any, len(config))
	for k, v := range config {
		cfg[k] = v
	}

	h.mu.Lock()
	h.config = cfg
	var onChange ConfigHook
	key := h.identity
	if h.state.Phase == PhaseReady {
		h.pctx = NewContext(h.theme, h.metadata, h.config, h.api, h.utils)
		if h.state.Manifest != nil {
			onChange = h.state.Manifest.Hooks.OnConfigChange
		}
	}
	h.mu.Unlock()

	if onChange != nil {
		h.callConfigHook(key, onChange, cfg)
	}
}

// SetTheme threads a new theme value into the slot. While Ready the context
// is rebuilt; there is no state transition and no reload.
func (h *Host) SetTheme(t theme.Theme) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.theme = t.Clone()
	if h.state.Phase == PhaseReady {
		h.pctx = NewContext(h.theme, h.metadata, h.config, h.api, h.utils)
	}
}

// callHook invokes a lifecycle hook, containing both returned errors and
// panics. A broken hook must not prevent the plugin from rendering or the
// host page from continuing.
func (h *Host) callHook(plugin, name string, fn Hook) {
	defer func() {
		if r := recover(); r != nil {
			RecordHookFailure(plugin, name)
			h.logger.Error("plugin hook panicked",
				"plugin", plugin,
				"hook", name,
				"panic", r)
		}
	}()
	if err := fn(); err != nil {
		RecordHookFailure(plugin, name)
		h.logger.Error("plugin hook threw",
			"plugin", plugin,
			"hook", name,
			"error", err)
	}
}

// callConfigHook mirrors callHook for the config-change callback.
func (h *Host) callConfigHook(plugin string, fn ConfigHook, config map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			RecordHookFailure(plugin, "onConfigChange")
			h.logger.Error("plugin hook panicked",
				"plugin", plugin,
				"hook", "onConfigChange",
				"panic", r)
		}
	}()
	if err := fn(config); err != nil {
		RecordHookFailure(plugin, "onConfigChange")
		h.logger.Error("plugin hook threw",
			"plugin", plugin,
			"hook", "onConfigChange",
			"error", err)
	}
}
