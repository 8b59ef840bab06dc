package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var pluginIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidatePlugins enforces basic plugin contract invariants at startup.
func ValidatePlugins(plugins []Plugin) error {
	seen := make(map[string]bool)
	for _, plugin := range plugins {
		id := plugin.ID()
		manifest := plugin.Manifest()
		if id == "" {
			return fmt.Errorf("plugin id is empty")
		}
		if !pluginIDPattern.MatchString(id) {
			return fmt.Errorf("plugin id %q does not match %s", id, pluginIDPattern.String())
		}
		if manifest.PluginID != id {
			return fmt.Errorf("plugin id mismatch: id=%q manifest=%q", id, manifest.PluginID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate plugin id: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// FilterPlugins keeps the compiled plugins that are enabled. With all set,
// every compiled plugin is kept.
func FilterPlugins(compiled []Plugin, enabled map[string]bool, all bool) []Plugin {
	out := make([]Plugin, 0, len(compiled))
	for _, p := range compiled {
		if all || enabled[p.ID()] {
			out = append(out, p)
		}
	}
	return out
}

// ValidateEnabledPlugins fails when config enables a plugin this build did
// not compile.
func ValidateEnabledPlugins(compiled []Plugin, enabled map[string]bool, all bool) error {
	if all {
		return nil
	}
	have := make(map[string]bool, len(compiled))
	for _, p := range compiled {
		have[p.ID()] = true
	}
	var missing []string
	for id, on := range enabled {
		if on && !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("enabled plugins not available: %s", strings.Join(missing, ", "))
	}
	return nil
}
