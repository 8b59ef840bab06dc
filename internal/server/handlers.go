package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshp123/climatelink/internal/core"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Plugins map[string]string `json:"plugins"`
}

// HealthHandler reports plugin health. DEGRADED plugins still answer 200;
// any plugin in ERROR turns the response into a 503.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Plugins: make(map[string]string, len(plugins))}
		for _, p := range plugins {
			resp.Plugins[p.ID()] = string(p.Health())
		}
		code := http.StatusOK
		switch core.WorstHealth(plugins) {
		case core.HealthError:
			resp.Status = "error"
			code = http.StatusServiceUnavailable
		case core.HealthDegraded:
			resp.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// MetricsHandler exposes the registry, including the handler's own error
// counter.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// DashboardsHandler serves embedded dashboard JSON by path. The bare
// /dashboards/ path lists what is available.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	index := make([]string, 0, len(dashboards))
	for path := range dashboards {
		index = append(index, path)
	}
	sort.Strings(index)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/dashboards/" {
			_ = json.NewEncoder(w).Encode(index)
			return
		}
		data, ok := dashboards[r.URL.Path]
		if !ok {
			w.Header().Del("Content-Type")
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
}
