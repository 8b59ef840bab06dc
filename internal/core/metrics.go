package core

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry gathers every plugin's collectors plus the shared ones
// the server owns, such as the profile mirror gauges.
func MetricsRegistry(plugins []Plugin, shared ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range shared {
		registry.MustRegister(collector)
	}
	return registry
}

// BuildInfo is a constant 1 gauge labelled with the server version and Go
// runtime.
func BuildInfo(version string) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "climatelink_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version, "goversion": runtime.Version()},
	}, func() float64 { return 1 })
}
