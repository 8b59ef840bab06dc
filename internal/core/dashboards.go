package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath is the HTTP path a plugin dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap keys every embedded dashboard by its DashboardPath.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		id := plugin.Manifest().PluginID
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(id, dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards materialises dashboards as <dir>/<plugin>/<name>.json for
// Grafana file provisioning. Files whose content is unchanged are left
// alone so Grafana does not reload them. An empty dir disables writing.
func WriteDashboards(dir string, plugins []Plugin) (int, error) {
	if dir == "" {
		return 0, nil
	}

	written := 0
	for _, plugin := range plugins {
		pluginDir := filepath.Join(dir, plugin.Manifest().PluginID)
		for _, dash := range plugin.Dashboards() {
			path := filepath.Join(pluginDir, dash.Name+".json")
			if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, dash.JSON) {
				continue
			}
			if err := os.MkdirAll(pluginDir, 0o755); err != nil {
				return written, fmt.Errorf("create dashboard dir: %w", err)
			}
			if err := os.WriteFile(path, dash.JSON, 0o644); err != nil {
				return written, fmt.Errorf("write dashboard %s: %w", path, err)
			}
			written++
		}
	}
	return written, nil
}
