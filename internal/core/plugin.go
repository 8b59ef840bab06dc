package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// HealthStatus is a plugin's readiness as reported by the registry and
// /health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

func (h HealthStatus) rank() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// Dashboard is a Grafana dashboard embedded in a plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest is the registry metadata of a plugin.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
}

// Plugin is what every climatelink plugin compiles against.
type Plugin interface {
	ID() string
	Manifest() Manifest
	AgentsMD() string
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server) error
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant is implemented by plugins that serve extra HTTP routes.
type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}

// Closer is implemented by plugins holding subscriptions or goroutines.
type Closer interface {
	Close()
}

// ClosePlugins closes every plugin that implements Closer, in reverse
// order.
func ClosePlugins(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		if c, ok := plugins[i].(Closer); ok {
			c.Close()
		}
	}
}

// WorstHealth is the most severe status across plugins. Unknown values
// count as ERROR; no plugins is HEALTHY.
func WorstHealth(plugins []Plugin) HealthStatus {
	levels := [...]HealthStatus{HealthHealthy, HealthDegraded, HealthError}
	worst := 0
	for _, p := range plugins {
		worst = max(worst, p.Health().rank())
	}
	return levels[worst]
}
