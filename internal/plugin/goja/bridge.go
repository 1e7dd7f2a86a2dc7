// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package goja

import (
	"context"
	"sync"

	goja "github.com/dop251/goja"

	plugins "github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/plugin/hostfunc"
)

// bundle owns one loaded plugin's runtime. goja runtimes are not safe for
// concurrent use, so every call into the VM serializes on mu.
type bundle struct {
	vm    *goja.Runtime
	mu    sync.Mutex
	funcs *hostfunc.Functions
}

func newBundle(funcs *hostfunc.Functions) *bundle {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &bundle{vm: vm, funcs: funcs}
}

// run evaluates the compiled program, interrupting it if ctx is cancelled
// mid-evaluation. The interrupt is cleared afterwards so later component
// and hook calls are unaffected.
func (b *bundle) run(ctx context.Context, prog *goja.Program) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	b.mu.Lock()
	_, err := b.vm.RunProgram(prog)
	b.mu.Unlock()

	close(done)
	b.vm.ClearInterrupt()
	return err
}

// render bridges the exported component into a RenderFunc. The context
// object is rebuilt per call so each render pass sees current host state.
func (b *bundle) render(comp goja.Callable) plugins.RenderFunc {
	return func(pctx *plugins.Context) (plugins.View, error) {
		b.mu.Lock()
		defer b.mu.Unlock()

		ctxObj := b.funcs.ContextObject(b.vm, pctx)
		v, err := comp(goja.Undefined(), ctxObj)
		if err != nil {
			return nil, plugins.WrapKind(plugins.KindRuntime, err, "plugin component threw")
		}
		return exportView(v), nil
	}
}

// hook bridges an optional lifecycle callback.
func (b *bundle) hook(fn goja.Callable) plugins.Hook {
	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, err := fn(goja.Undefined()); err != nil {
			return plugins.WrapKind(plugins.KindRuntime, err, "plugin lifecycle hook threw")
		}
		return nil
	}
}

// configHook bridges the config-change callback, passing the new config
// as a plain object.
func (b *bundle) configHook(fn goja.Callable) plugins.ConfigHook {
	return func(config map[string]any) error {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, err := fn(goja.Undefined(), b.vm.ToValue(config)); err != nil {
			return plugins.WrapKind(plugins.KindRuntime, err, "plugin config hook threw")
		}
		return nil
	}
}

// exportView converts a component's return value into a View. Objects map
// through directly; a string is treated as pre-rendered markup; anything
// else is wrapped so the frontend always receives a tree.
func exportView(v goja.Value) plugins.View {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return plugins.View{}
	}

	exported := v.Export()
	switch val := exported.(type) {
	case map[string]any:
		return plugins.View(val)
	case string:
		return plugins.View{"html": val}
	case []any:
		return plugins.View{"children": val}
	default:
		return plugins.View{"value": val}
	}
}
