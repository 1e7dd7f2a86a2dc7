// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Loads is the counter for plugin load attempts by outcome. The status
// label is "ready" for successful loads, otherwise the error kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var Loads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "veranda_plugin_loads_total",
		Help: "Total number of plugin load attempts by plugin and outcome",
	},
	[]string{"plugin", "status"},
)

// LoadDuration is the histogram for successful load duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoadDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "veranda_plugin_load_duration_seconds",
		Help:    "Plugin resolve+load+validate duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin"},
)

// HookFailures is the counter for lifecycle hooks that threw.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "veranda_plugin_hook_failures_total",
		Help: "Total number of lifecycle hook invocations that threw",
	},
	[]string{"plugin", "hook"},
)

// RenderCrashes is the counter for render passes caught by the containment
// shell. Use RegisterMetrics to register this with a Prometheus registry.
var RenderCrashes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "veranda_plugin_render_crashes_total",
		Help: "Total number of render-time crashes contained per plugin",
	},
	[]string{"plugin"},
)

// RegisterMetrics registers plugin runtime metrics with the given registry.
// This must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Loads)
	reg.MustRegister(LoadDuration)
	reg.MustRegister(HookFailures)
	reg.MustRegister(RenderCrashes)
}

// RecordLoad increments the load counter for the given plugin and outcome.
func RecordLoad(plugin, status string) {
	Loads.WithLabelValues(plugin, status).Inc()
}

// RecordLoadDuration records how long a successful load took.
func RecordLoadDuration(plugin string, d time.Duration) {
	LoadDuration.WithLabelValues(plugin).Observe(d.Seconds())
}

// RecordHookFailure increments the hook failure counter.
func RecordHookFailure(plugin, hook string) {
	HookFailures.WithLabelValues(plugin, hook).Inc()
}

// RecordRenderCrash increments the contained-crash counter.
func RecordRenderCrash(plugin string) {
	RenderCrashes.WithLabelValues(plugin).Inc()
}
