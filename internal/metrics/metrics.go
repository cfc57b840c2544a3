// Package metrics exposes the supervisor's internal Prometheus
// metrics against a private registry. No HTTP endpoint is served
// here — that would be the out-of-scope frontend surface; a caller
// (cmd/ or an embedding process) is responsible for wiring the
// registry to whatever scrape path it runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every gauge/counter the supervisor updates.
type Metrics struct {
	Registry *prometheus.Registry

	PluginsLoaded          prometheus.Gauge
	EndpointsRegistered    prometheus.Gauge
	ServerNodesOnline      prometheus.Gauge
	FanoutSubscribeErrors  prometheus.Counter
	PluginLoadErrors       prometheus.Counter
	CleanupDuration        prometheus.Histogram
}

// New constructs a Metrics bundle registered against a fresh private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		PluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matterbridge_plugins_loaded",
			Help: "Number of plugins currently in the loaded or later state.",
		}),
		EndpointsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matterbridge_endpoints_registered",
			Help: "Number of bridged endpoints currently in the device registry.",
		}),
		ServerNodesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matterbridge_server_nodes_online",
			Help: "Number of Matter server nodes currently online.",
		}),
		FanoutSubscribeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matterbridge_fanout_subscribe_errors_total",
			Help: "Number of attribute subscription failures encountered by the fan-out.",
		}),
		PluginLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matterbridge_plugin_load_errors_total",
			Help: "Number of plugin load/start failures.",
		}),
		CleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matterbridge_cleanup_duration_seconds",
			Help:    "Time spent in the lifecycle supervisor's cleanup sequence.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.PluginsLoaded,
		m.EndpointsRegistered,
		m.ServerNodesOnline,
		m.FanoutSubscribeErrors,
		m.PluginLoadErrors,
		m.CleanupDuration,
	)

	return m
}
