package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type closingPlugin struct {
	stubPlugin
	closed *[]string
}

func (c closingPlugin) Close() { *c.closed = append(*c.closed, c.id) }

func TestWorstHealth(t *testing.T) {
	healthy := newStubPlugin("a")
	degraded := newStubPlugin("b")
	degraded.health = HealthDegraded
	broken := newStubPlugin("c")
	broken.health = HealthError
	unknown := newStubPlugin("d")
	unknown.health = "UNKNOWN"

	cases := []struct {
		plugins []Plugin
		want    HealthStatus
	}{
		{nil, HealthHealthy},
		{[]Plugin{healthy}, HealthHealthy},
		{[]Plugin{healthy, degraded}, HealthDegraded},
		{[]Plugin{degraded, broken, healthy}, HealthError},
		{[]Plugin{unknown}, HealthError},
	}
	for i, tc := range cases {
		if got := WorstHealth(tc.plugins); got != tc.want {
			t.Fatalf("case %d: got %s, want %s", i, got, tc.want)
		}
	}
}

func TestClosePluginsReverseOrder(t *testing.T) {
	var closed []string
	plugins := []Plugin{
		closingPlugin{stubPlugin: newStubPlugin("first"), closed: &closed},
		newStubPlugin("plain"),
		closingPlugin{stubPlugin: newStubPlugin("second"), closed: &closed},
	}
	ClosePlugins(plugins)
	if len(closed) != 2 || closed[0] != "second" || closed[1] != "first" {
		t.Fatalf("unexpected close order: %v", closed)
	}
}

func TestWriteDashboardsSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	plugins := []Plugin{newStubPlugin("demo")}

	n, err := WriteDashboards(dir, plugins)
	if err != nil || n != 1 {
		t.Fatalf("first write: n=%d err=%v", n, err)
	}
	path := filepath.Join(dir, "demo", "demo.json")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	n, err = WriteDashboards(dir, plugins)
	if err != nil || n != 0 {
		t.Fatalf("second write: n=%d err=%v", n, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(old) {
		t.Fatalf("unchanged dashboard was rewritten")
	}

	if n, err := WriteDashboards("", plugins); err != nil || n != 0 {
		t.Fatalf("empty dir: n=%d err=%v", n, err)
	}
}
