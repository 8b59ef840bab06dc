package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/joshp123/climatelink/internal/core"
)

type fakePlugin struct {
	id     string
	health core.HealthStatus
	gauge  prometheus.Gauge
}

func (f fakePlugin) ID() string { return f.id }
func (f fakePlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: f.id, DisplayName: f.id, Version: "test"}
}
func (f fakePlugin) AgentsMD() string { return "" }
func (f fakePlugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "overview", JSON: []byte(`{"title":"x"}`)}}
}
func (f fakePlugin) RegisterGRPC(*grpc.Server) error { return nil }
func (f fakePlugin) Collectors() []prometheus.Collector {
	if f.gauge == nil {
		return nil
	}
	return []prometheus.Collector{f.gauge}
}
func (f fakePlugin) Health() core.HealthStatus { return f.health }
func (f fakePlugin) HealthMessage() string     { return "" }

func (f fakePlugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/"+f.id+"/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMux(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "climatelink_test_gauge", Help: "test"})
	gauge.Set(7)
	plugins := []core.Plugin{
		fakePlugin{id: "provisioning", health: core.HealthDegraded, gauge: gauge},
		fakePlugin{id: "ircodes", health: core.HealthHealthy},
	}
	mux := NewMux(plugins, core.MetricsRegistry(plugins))

	code, body := get(t, mux, "/health")
	assert.Equal(t, http.StatusOK, code)
	var health healthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "DEGRADED", health.Plugins["provisioning"])

	code, body = get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "climatelink_test_gauge 7")

	code, body = get(t, mux, "/dashboards/ircodes/overview.json")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"title":"x"}`, body)

	code, _ = get(t, mux, "/dashboards/ircodes/missing.json")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get(t, mux, "/dashboards/")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["/dashboards/ircodes/overview.json","/dashboards/provisioning/overview.json"]`, body)

	code, body = get(t, mux, "/ircodes/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)
}

func TestHealthError(t *testing.T) {
	h := HealthHandler([]core.Plugin{fakePlugin{id: "provisioning", health: core.HealthError}})
	code, body := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, `"status":"error"`)
}
