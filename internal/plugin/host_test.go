// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/theme"
)

// stubResolver returns per-plugin source text and can block a specific
// plugin id until released.
type stubResolver struct {
	mu     sync.Mutex
	calls  map[string]int
	source map[string]string
	errs   map[string]error
	gates  map[string]chan struct{}
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		calls:  make(map[string]int),
		source: make(map[string]string),
		errs:   make(map[string]error),
		gates:  make(map[string]chan struct{}),
	}
}

func (r *stubResolver) Resolve(_ context.Context, md plugin.Metadata) (string, error) {
	r.mu.Lock()
	r.calls[md.ID]++
	gate := r.gates[md.ID]
	src := r.source[md.ID]
	err := r.errs[md.ID]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return src, err
}

func (r *stubResolver) callCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// stubLoader maps source text to manifests.
type stubLoader struct {
	mu        sync.Mutex
	manifests map[string]*plugin.Manifest
	errs      map[string]error
}

func newStubLoader() *stubLoader {
	return &stubLoader{
		manifests: make(map[string]*plugin.Manifest),
		errs:      make(map[string]error),
	}
}

func (l *stubLoader) Load(_ context.Context, source string) (*plugin.Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.errs[source]; err != nil {
		return nil, err
	}
	if m := l.manifests[source]; m != nil {
		return m, nil
	}
	return nil, errors.New("no manifest for source")
}

func noopComponent(*plugin.Context) (plugin.View, error) {
	return plugin.View{}, nil
}

func enabled(v bool) *bool { return &v }

func TestHost_ScenarioA_SuccessfulLoadWithoutHooks(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{Component: noopComponent}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{
		ID:        "p1",
		BundleURL: "https://x/y.js",
		Enabled:   enabled(true),
	})

	state := host.State()
	require.Equal(t, plugin.PhaseReady, state.Phase)
	assert.NotNil(t, state.Manifest)
	assert.False(t, state.LoadedAt.IsZero())
}

func TestHost_ScenarioB_DisabledShortCircuits(t *testing.T) {
	resolver := newStubResolver()
	loader := newStubLoader()
	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", Enabled: enabled(false), BundleURL: "https://x/y.js"})

	state := host.State()
	require.Equal(t, plugin.PhaseError, state.Phase)
	assert.Equal(t, plugin.KindDisabled, state.ErrKind)
	assert.Equal(t, "Plugin is disabled", state.ErrMessage)
	assert.Zero(t, resolver.callCount("p1"), "resolver must never be called for a disabled plugin")
}

func TestHost_MissingLoadLocationShortCircuits(t *testing.T) {
	resolver := newStubResolver()
	host := plugin.NewHost(resolver, newStubLoader())
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1"})

	state := host.State()
	require.Equal(t, plugin.PhaseError, state.Phase)
	assert.Equal(t, plugin.KindMissingConfig, state.ErrKind)
	assert.Equal(t, "Bundle URL is missing", state.ErrMessage)
	assert.Zero(t, resolver.callCount("p1"))
}

func TestHost_ScenarioC_ResolverFailureIsNetworkError(t *testing.T) {
	resolver := newStubResolver()
	resolver.errs["p1"] = plugin.Errorf(plugin.KindNetwork, "Network error")

	host := plugin.NewHost(resolver, newStubLoader())
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	state := host.State()
	require.Equal(t, plugin.PhaseError, state.Phase)
	assert.Equal(t, plugin.KindNetwork, state.ErrKind)
	assert.Contains(t, state.ErrMessage, "Network error")
}

func TestHost_ScenarioD_MissingComponentIsParseError(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{} // no component

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	state := host.State()
	require.Equal(t, plugin.PhaseError, state.Phase)
	assert.Equal(t, plugin.KindParse, state.ErrKind)
	assert.Contains(t, state.ErrMessage, "component")
}

func TestHost_UnclassifiedFailureDefaultsToRuntime(t *testing.T) {
	resolver := newStubResolver()
	resolver.errs["p1"] = errors.New("something odd")

	host := plugin.NewHost(resolver, newStubLoader())
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	assert.Equal(t, plugin.KindRuntime, host.State().ErrKind)
}

func TestHost_OnMountInvokedExactlyOnce(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	var mounts int
	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnMount: func() error { mounts++; return nil },
		},
	}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	md := plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"}
	host.Use(context.Background(), md)
	// Re-using the same identity must not re-trigger a load or mount.
	host.Use(context.Background(), md)
	host.Use(context.Background(), md)

	assert.Equal(t, 1, mounts)
	assert.Equal(t, 1, resolver.callCount("p1"))
}

func TestHost_OnMountThrowDoesNotFailLoad(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnMount: func() error { return errors.New("mount hook broke") },
		},
	}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
}

func TestHost_ScenarioE_OnUnmountThrowIsContained(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	var unmounts int
	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnUnmount: func() error { unmounts++; return errors.New("unmount broke") },
		},
	}

	host := plugin.NewHost(resolver, loader)
	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	require.Equal(t, plugin.PhaseReady, host.State().Phase)

	assert.NotPanics(t, host.Teardown)
	assert.Equal(t, plugin.PhaseIdle, host.State().Phase)
	assert.Equal(t, 1, unmounts)

	// Idempotent: tearing down an already-torn-down instance must not
	// re-invoke the hook.
	host.Teardown()
	assert.Equal(t, 1, unmounts)
}

func TestHost_PanickingHookIsContained(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnMount: func() error { panic("mount panic") },
		},
	}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	assert.NotPanics(t, func() {
		host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	})
	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
}

func TestHost_ScenarioF_StaleLoadIsDiscarded(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"
	resolver.source["p2"] = "src-p2"
	gate := make(chan struct{})
	resolver.gates["p1"] = gate

	manifestP1 := &plugin.Manifest{Component: noopComponent}
	manifestP2 := &plugin.Manifest{Component: noopComponent}
	loader := newStubLoader()
	loader.manifests["src-p1"] = manifestP1
	loader.manifests["src-p2"] = manifestP2

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/p1.js"})
	}()

	// Wait until p1's load is in flight, then switch identity.
	require.Eventually(t, func() bool {
		return resolver.callCount("p1") == 1
	}, time.Second, time.Millisecond)

	host.Use(context.Background(), plugin.Metadata{ID: "p2", BundleURL: "https://x/p2.js"})
	require.Equal(t, plugin.PhaseReady, host.State().Phase)

	// Let p1's stale load settle; its success must not touch p2's state.
	close(gate)
	wg.Wait()

	state := host.State()
	assert.Equal(t, plugin.PhaseReady, state.Phase)
	assert.Same(t, manifestP2, state.Manifest)
}

func TestHost_IdentityChangeUnmountsPrevious(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"
	resolver.source["p2"] = "src-p2"

	var unmounts int
	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks:     plugin.Hooks{OnUnmount: func() error { unmounts++; return nil }},
	}
	loader.manifests["src-p2"] = &plugin.Manifest{Component: noopComponent}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/p1.js"})
	host.Use(context.Background(), plugin.Metadata{ID: "p2", BundleURL: "https://x/p2.js"})

	assert.Equal(t, 1, unmounts)
	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
}

func TestHost_RetryOnlyFromError(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"
	resolver.errs["p1"] = plugin.Errorf(plugin.KindNetwork, "flaky upstream")

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{Component: noopComponent}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	require.Equal(t, plugin.PhaseError, host.State().Phase)

	// Upstream recovers; retry re-enters the guarded load path.
	resolver.mu.Lock()
	delete(resolver.errs, "p1")
	resolver.mu.Unlock()

	host.Retry(context.Background())
	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
	assert.Equal(t, 2, resolver.callCount("p1"))

	// Retry from Ready is a no-op.
	host.Retry(context.Background())
	assert.Equal(t, 2, resolver.callCount("p1"))
}

func TestHost_SetConfigWhileReady(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	var received map[string]any
	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnConfigChange: func(cfg map[string]any) error {
				received = cfg
				return nil
			},
		},
	}

	host := plugin.NewHost(resolver, loader, plugin.WithConfig(map[string]any{"rows": 10}))
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	require.Equal(t, plugin.PhaseReady, host.State().Phase)
	require.Equal(t, 10, host.Context().Config["rows"])

	host.SetConfig(map[string]any{"rows": 50})

	assert.Equal(t, plugin.PhaseReady, host.State().Phase, "config change must not reset load state")
	assert.Equal(t, 50, received["rows"])
	assert.Equal(t, 50, host.Context().Config["rows"])
}

func TestHost_SetConfigHookThrowIsContained(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{
		Component: noopComponent,
		Hooks: plugin.Hooks{
			OnConfigChange: func(map[string]any) error { return errors.New("config hook broke") },
		},
	}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	assert.NotPanics(t, func() { host.SetConfig(map[string]any{"x": 1}) })
	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
}

func TestHost_SetThemeRebuildsContext(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{Component: noopComponent}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})
	first := host.Context()
	require.NotNil(t, first)
	require.Equal(t, theme.ModeLight, first.Theme.Mode)

	host.SetTheme(theme.Default(theme.ModeDark))

	second := host.Context()
	assert.Equal(t, theme.ModeDark, second.Theme.Mode)
	assert.Equal(t, theme.ModeLight, first.Theme.Mode, "handed-out contexts are immutable")
	assert.Equal(t, plugin.PhaseReady, host.State().Phase)
}

func TestHost_ThemeStoreSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{Component: noopComponent}

	store := theme.NewStore(theme.Default(theme.ModeLight))
	host := plugin.NewHost(resolver, loader, plugin.WithThemeStore(store))
	defer host.Close()

	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	store.Set(theme.Default(theme.ModeDark))

	assert.Eventually(t, func() bool {
		return host.Context().Theme.Mode == theme.ModeDark
	}, time.Second, time.Millisecond)
}

func TestHost_ContextCarriesNormalizedMetadata(t *testing.T) {
	resolver := newStubResolver()
	resolver.source["p1"] = "src-p1"

	loader := newStubLoader()
	loader.manifests["src-p1"] = &plugin.Manifest{Component: noopComponent}

	host := plugin.NewHost(resolver, loader)
	defer host.Close()

	// No version, no enabled flag in the registry record.
	host.Use(context.Background(), plugin.Metadata{ID: "p1", BundleURL: "https://x/y.js"})

	pctx := host.Context()
	require.NotNil(t, pctx)
	assert.Equal(t, plugin.DefaultVersion, pctx.Metadata.Version)
	require.NotNil(t, pctx.Metadata.Enabled)
	assert.True(t, *pctx.Metadata.Enabled)
}
