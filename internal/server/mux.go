package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/climatelink/internal/core"
)

// NewMux wires health, metrics, dashboards and plugin HTTP handlers.
func NewMux(plugins []core.Plugin, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", HealthHandler(plugins))
	mux.Handle("/metrics", MetricsHandler(registry))
	mux.Handle("/dashboards/", DashboardsHandler(core.DashboardsMap(plugins)))
	for _, p := range plugins {
		if r, ok := p.(core.HTTPRegistrant); ok {
			r.RegisterHTTP(mux)
		}
	}
	return mux
}
