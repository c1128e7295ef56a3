// Package metrics exposes Prometheus collectors for the browser core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the core emits. Construct one per
// process and inject it; collectors are never registered globally.
type Metrics struct {
	// ToolRequests counts protocol requests by tool and result code.
	ToolRequests *prometheus.CounterVec

	// Installs counts engine install attempts by kind and outcome.
	Installs *prometheus.CounterVec

	// LiveInstances tracks currently live browser instances.
	LiveInstances prometheus.Gauge

	// PageEvents counts per-page request and error events by engine kind.
	PageEvents *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass a dedicated
// registry in tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brooklyn",
			Name:      "tool_requests_total",
			Help:      "Protocol tool requests by tool name and result code.",
		}, []string{"tool", "code"}),
		Installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brooklyn",
			Name:      "engine_installs_total",
			Help:      "Engine install attempts by kind and outcome.",
		}, []string{"engine", "outcome"}),
		LiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brooklyn",
			Name:      "live_instances",
			Help:      "Browser instances currently live in the pool.",
		}),
		PageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brooklyn",
			Name:      "page_events_total",
			Help:      "Page-level request and error events by engine kind.",
		}, []string{"engine", "event"}),
	}

	reg.MustRegister(m.ToolRequests, m.Installs, m.LiveInstances, m.PageEvents)
	return m
}

// NewTestMetrics creates collectors on a throwaway registry.
func NewTestMetrics() *Metrics {
	return New(prometheus.NewRegistry())
}
