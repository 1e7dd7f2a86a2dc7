// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package goja loads plugin bundles by evaluating their JavaScript source
// in an embedded engine and extracting the exported manifest.
//
// Each load gets a fresh runtime. The bundle's default export is read from
// a CommonJS-style module shim (module.exports / exports.default), falling
// back to a global "plugin" object for bundles built as plain scripts.
package goja

import (
	"context"

	goja "github.com/dop251/goja"

	plugins "github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/plugin/hostfunc"
)

// Compile-time interface check.
var _ plugins.BundleLoader = (*Loader)(nil)

// Loader turns raw bundle source text into executable manifests.
type Loader struct {
	refs  *refTable
	funcs *hostfunc.Functions
}

// NewLoader creates a bundle loader. The host functions are injected into
// every context object handed to loaded components.
// Panics if funcs is nil (consistent with hostfunc.New).
func NewLoader(funcs *hostfunc.Functions) *Loader {
	if funcs == nil {
		panic("goja.NewLoader: host functions cannot be nil")
	}
	return &Loader{
		refs:  newRefTable(),
		funcs: funcs,
	}
}

// Load evaluates source text and returns its validated manifest.
//
// The bundle reference acquired for compilation is released once
// instantiation settles, success or failure. A throw during evaluation is
// a runtime-kind error; a malformed default export is parse-kind.
func (l *Loader) Load(ctx context.Context, source string) (*plugins.Manifest, error) {
	ref := l.refs.acquire(source)
	defer ref.Release()

	prog, err := goja.Compile(ref.Name(), source, false)
	if err != nil {
		return nil, plugins.WrapKind(plugins.KindRuntime, err, "plugin source failed to compile")
	}

	b := newBundle(l.funcs)
	module := installModuleShim(b.vm)

	if err := b.run(ctx, prog); err != nil {
		return nil, plugins.WrapKind(plugins.KindRuntime, err, "plugin source threw during evaluation")
	}

	export := defaultExport(b.vm, module)
	manifest, err := manifestFromExport(b, export)
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// installModuleShim prepares module/exports globals and returns the module
// object for later export extraction.
func installModuleShim(vm *goja.Runtime) *goja.Object {
	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)
	return module
}

// defaultExport resolves the bundle's default export: exports.default wins,
// then a non-empty module.exports, then a global "plugin" object.
func defaultExport(vm *goja.Runtime, module *goja.Object) goja.Value {
	exp := module.Get("exports")
	if obj, ok := exp.(*goja.Object); ok {
		if d := obj.Get("default"); d != nil && !goja.IsUndefined(d) && !goja.IsNull(d) {
			return d
		}
		if len(obj.Keys()) > 0 {
			return exp
		}
	}

	if g := vm.GlobalObject().Get("plugin"); g != nil && !goja.IsUndefined(g) && !goja.IsNull(g) {
		return g
	}
	return nil
}

// manifestFromExport validates the export shape and bridges its members
// into manifest closures. Validation failures are parse-kind: a malformed
// default export must never propagate as a silent empty render.
func manifestFromExport(b *bundle, export goja.Value) (*plugins.Manifest, error) {
	if export == nil || goja.IsUndefined(export) || goja.IsNull(export) {
		return nil, plugins.Errorf(plugins.KindParse, "plugin bundle has no default export")
	}

	obj, ok := export.(*goja.Object)
	if !ok {
		return nil, plugins.Errorf(plugins.KindParse, "plugin default export is not an object")
	}

	comp, ok := goja.AssertFunction(obj.Get("component"))
	if !ok {
		return nil, plugins.Errorf(plugins.KindParse, "plugin default export is missing a callable component")
	}

	m := &plugins.Manifest{
		Component: b.render(comp),
		Metadata:  selfMetadata(obj.Get("metadata")),
	}

	if hooksVal := obj.Get("hooks"); hooksVal != nil {
		if hooksObj, isObj := hooksVal.(*goja.Object); isObj {
			if fn, isFn := goja.AssertFunction(hooksObj.Get("onMount")); isFn {
				m.Hooks.OnMount = b.hook(fn)
			}
			if fn, isFn := goja.AssertFunction(hooksObj.Get("onUnmount")); isFn {
				m.Hooks.OnUnmount = b.hook(fn)
			}
			if fn, isFn := goja.AssertFunction(hooksObj.Get("onConfigChange")); isFn {
				m.Hooks.OnConfigChange = b.configHook(fn)
			}
		}
	}

	return m, nil
}

// selfMetadata reads the bundle's self-reported metadata, if any.
func selfMetadata(v goja.Value) *plugins.SelfMetadata {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return &plugins.SelfMetadata{
		Name:    stringField(obj, "name"),
		Author:  stringField(obj, "author"),
		Version: stringField(obj, "version"),
	}
}

func stringField(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
