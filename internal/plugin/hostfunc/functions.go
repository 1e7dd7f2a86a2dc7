// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package hostfunc exposes host capabilities to plugin bundles.
//
// The portal hands each plugin a context object at render time; this
// package builds that object inside the plugin's JS runtime. Functions that
// reach host resources are gated by capability checks.
package hostfunc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dop251/goja"
	"github.com/oklog/ulid/v2"

	"github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/plugin/capability"
)

// Capability names checked before host functions run.
const (
	CapToast    = "notify.toast"
	CapNavigate = "nav.navigate"
	CapAPI      = "api.request"
)

// Functions builds host function surfaces for plugin runtimes.
type Functions struct {
	enforcer *capability.Enforcer
}

// New creates host functions with the given enforcer.
// Panics if enforcer is nil.
func New(enforcer *capability.Enforcer) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	return &Functions{enforcer: enforcer}
}

// ContextObject materializes a plugin context inside the VM: theme, the
// normalized metadata record, config, the utility surface, and the scoped
// API client. The object is rebuilt per render so each pass observes the
// current host state.
func (f *Functions) ContextObject(vm *goja.Runtime, pctx *plugin.Context) *goja.Object {
	pluginID := pctx.Metadata.Key()

	obj := vm.NewObject()
	setField(obj, "theme", map[string]any{
		"mode":   string(pctx.Theme.Mode),
		"tokens": pctx.Theme.Tokens,
	})
	setField(obj, "metadata", metadataMap(pctx.Metadata))
	setField(obj, "config", pctx.Config)
	setField(obj, "utils", f.utilsObject(vm, pluginID, pctx))
	setField(obj, "api", f.apiObject(vm, pluginID, pctx))
	setField(obj, "log", f.logFn(vm, pluginID))
	setField(obj, "newRequestId", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(ulid.Make().String())
	})
	return obj
}

// metadataMap projects the normalized record into the shape plugin code
// reads. Enabled and version are always present here.
func metadataMap(md plugin.Metadata) map[string]any {
	return map[string]any{
		"id":          md.ID,
		"name":        md.Name,
		"title":       md.Title,
		"description": md.Description,
		"version":     md.Version,
		"enabled":     md.IsEnabled(),
		"icon":        md.Icon,
	}
}

func (f *Functions) utilsObject(vm *goja.Runtime, pluginID string, pctx *plugin.Context) *goja.Object {
	utils := vm.NewObject()

	setField(utils, "toast", func(call goja.FunctionCall) goja.Value {
		f.require(vm, pluginID, CapToast)
		message := call.Argument(0).String()
		severity := "info"
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
			severity = call.Argument(1).String()
		}
		pctx.Utils.Toast(message, severity)
		return goja.Undefined()
	})

	setField(utils, "navigate", func(call goja.FunctionCall) goja.Value {
		f.require(vm, pluginID, CapNavigate)
		pctx.Utils.Navigate(call.Argument(0).String())
		return goja.Undefined()
	})

	return utils
}

// apiObject exposes the scoped API client. Plugin code never sees the real
// backend location; the client either proxies through the portal backend or
// uses an explicitly configured development override.
func (f *Functions) apiObject(vm *goja.Runtime, pluginID string, pctx *plugin.Context) *goja.Object {
	api := vm.NewObject()

	methods := map[string]string{
		"get":    http.MethodGet,
		"post":   http.MethodPost,
		"put":    http.MethodPut,
		"patch":  http.MethodPatch,
		"delete": http.MethodDelete,
	}
	for name, method := range methods {
		setField(api, name, f.requestFn(vm, pluginID, pctx, method))
	}

	setField(api, "isProxyMode", func(goja.FunctionCall) goja.Value {
		if pctx.API == nil {
			return vm.ToValue(true)
		}
		return vm.ToValue(pctx.API.IsProxyMode())
	})

	return api
}

func (f *Functions) requestFn(vm *goja.Runtime, pluginID string, pctx *plugin.Context, method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		f.require(vm, pluginID, CapAPI)

		if pctx.API == nil {
			panic(vm.NewGoError(fmt.Errorf("no API client configured for plugin %s", pluginID)))
		}

		path := call.Argument(0).String()
		body, header := requestOptions(call.Argument(1))

		resp, err := pctx.API.Request(context.Background(), method, path, body, header)
		if err != nil {
			panic(vm.NewGoError(err))
		}

		out := vm.NewObject()
		setField(out, "status", resp.Status)
		setField(out, "body", string(resp.Body))
		headers := make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}
		setField(out, "headers", headers)
		return out
	}
}

// requestOptions unpacks the optional {body, headers} argument.
func requestOptions(v goja.Value) ([]byte, http.Header) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, nil
	}

	var body []byte
	if raw := obj.Get("body"); raw != nil && !goja.IsUndefined(raw) {
		body = []byte(raw.String())
	}

	header := http.Header{}
	if raw := obj.Get("headers"); raw != nil && !goja.IsUndefined(raw) {
		if hdrs, isMap := raw.Export().(map[string]any); isMap {
			for k, hv := range hdrs {
				header.Set(k, fmt.Sprint(hv))
			}
		}
	}
	return body, header
}

// logFn lets plugin code write structured log lines attributed to it.
// No capability required, matching the host page's console.
func (f *Functions) logFn(vm *goja.Runtime, pluginID string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		level := call.Argument(0).String()
		message := call.Argument(1).String()

		logger := slog.Default().With("plugin", pluginID)
		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return goja.Undefined()
	}
}

// require throws into the plugin runtime when a capability is denied.
func (f *Functions) require(vm *goja.Runtime, pluginID, capName string) {
	if !f.enforcer.Check(pluginID, capName) {
		panic(vm.NewGoError(fmt.Errorf("capability denied: %s requires %s", pluginID, capName)))
	}
}

// setField assigns an object property, tolerating the error goja reports
// only for non-extensible objects, which the runtime never builds.
func setField(obj *goja.Object, name string, v any) {
	_ = obj.Set(name, v)
}
