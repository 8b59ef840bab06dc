package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/headers"
	"github.com/joshp123/climatelink/internal/profiles"
	"github.com/joshp123/climatelink/plugins/ircodes"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTemplateAndCheck(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "bedroom.yaml"))

	_, err = run(t, "--profiles", dir, "template", "bedroom")
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, "--profiles", dir, "check", "bedroom")
	assert.True(t, errors.Is(err, errNotReady))
	assert.Contains(t, out, firmware.CodePlaceholder)

	out, err = run(t, "--profiles", dir, "--json", "check")
	assert.True(t, errors.Is(err, errNotReady))
	var reports []firmware.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "bedroom", reports[0].Profile)
}

func TestImportIR(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)

	capture := filepath.Join(t.TempDir(), "on.txt")
	require.NoError(t, os.WriteFile(capture, []byte("uint16_t rawData[4] = {9000, 4500, 560, 1690};"), 0o600))

	out, err := run(t, "--profiles", dir, "import-ir", "bedroom", "aire1", "on", capture)
	require.NoError(t, err)
	assert.Contains(t, out, "AIRE1 ON = 4 timings")

	_, err = run(t, "--profiles", dir, "import-ir", "bedroom", "aire3", "off", capture)
	assert.ErrorContains(t, err, `unit "aire3" not found`)

	_, err = run(t, "--profiles", dir, "import-ir", "--create", "--reference", "bedroom", "aire3", "off", capture)
	require.NoError(t, err)

	entry, err := profiles.NewDirStore(dir).Get(context.Background(), "bedroom")
	require.NoError(t, err)
	aire1, ok := entry.Profile.Table("AIRE1")
	require.True(t, ok)
	assert.Equal(t, []uint16{9000, 4500, 560, 1690}, aire1.Sequence(firmware.CommandOn))
	aire3, ok := entry.Profile.Table("AIRE3")
	require.True(t, ok)
	assert.Len(t, aire3.Sequence(firmware.CommandOff), 4)
	assert.Equal(t, capture, entry.Refs.Captures[profiles.CaptureKey("AIRE3", firmware.CommandOff)])

	_, err = run(t, "--profiles", dir, "import-ir", "bedroom", "aire1", "sideways", capture)
	assert.ErrorContains(t, err, "command")
}

func TestImportIRReferenceRelativePath(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)

	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "off.txt"), []byte("9000 4500 560 560"), 0o600))
	t.Chdir(work)

	_, err = run(t, "--profiles", dir, "import-ir", "--reference", "bedroom", "aire1", "off", "off.txt")
	require.NoError(t, err)

	entry, err := profiles.NewDirStore(dir).Get(context.Background(), "bedroom")
	require.NoError(t, err)
	stored := entry.Refs.Captures[profiles.CaptureKey("AIRE1", firmware.CommandOff)]
	assert.True(t, filepath.IsAbs(stored))
	assert.Equal(t, "off.txt", filepath.Base(stored))

	aire1, ok := entry.Profile.Table("AIRE1")
	require.True(t, ok)
	assert.Equal(t, []uint16{9000, 4500, 560, 560}, aire1.Sequence(firmware.CommandOff))
}

func TestRenderWritesPrivateFiles(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	_, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)

	_, err = run(t, "--profiles", dir, "render", "bedroom", "--out", outDir)
	assert.True(t, errors.Is(err, headers.ErrNotReady))

	out, err := run(t, "--profiles", dir, "--json", "render", "bedroom", "--out", outDir, "--allow-template")
	require.NoError(t, err)

	var sums map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	assert.Len(t, sums, 2)

	for _, name := range []string{firmware.ConfigHeader, firmware.IRHeader} {
		info, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		assert.Len(t, sums[name], 64)
	}
}

func TestImportHeaders(t *testing.T) {
	dir := t.TempDir()
	src := t.TempDir()

	files, err := headers.Render(firmware.TemplateProfile(""), headers.Options{AllowTemplate: true})
	require.NoError(t, err)
	configPath := filepath.Join(src, firmware.ConfigHeader)
	irPath := filepath.Join(src, firmware.IRHeader)
	require.NoError(t, os.WriteFile(configPath, files[firmware.ConfigHeader], 0o600))
	require.NoError(t, os.WriteFile(irPath, files[firmware.IRHeader], 0o600))

	out, err := run(t, "--profiles", dir, "import-headers", "kitchen", "--config-h", configPath, "--ir-h", irPath)
	assert.True(t, errors.Is(err, errNotReady))
	assert.Contains(t, out, "kitchen.yaml")

	entry, err := profiles.NewDirStore(dir).Get(context.Background(), "kitchen")
	require.NoError(t, err)
	assert.True(t, entry.Profile.IsTemplate())
	assert.Len(t, entry.Profile.Tables, 2)
}

func TestMac(t *testing.T) {
	out, err := run(t, "--json", "mac", "AA-BB-CC-DD-EE-01")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "aa:bb:cc:dd:ee:01", info["address"])
	assert.Equal(t, "{0xAA,0xBB,0xCC,0xDD,0xEE,0x01}", info["initializer"])
	assert.Equal(t, false, info["multicast"])

	_, err = run(t, "mac", "aa:bb")
	assert.Error(t, err)
}

func TestHistoryRequiresLedger(t *testing.T) {
	_, err := run(t, "history", "bedroom")
	assert.ErrorContains(t, err, "no ledger configured")
}

func TestDialableAddr(t *testing.T) {
	assert.Equal(t, "localhost:9000", dialableAddr("0.0.0.0:9000"))
	assert.Equal(t, "localhost:9000", dialableAddr(":9000"))
	assert.Equal(t, "relay.lan:9000", dialableAddr("relay.lan:9000"))
}

func TestResolveNamedID(t *testing.T) {
	id, err := resolveNamedID("unit", "Aire 1", map[string]string{"AIRE_1": "0", "AIRE2": "1"})
	require.NoError(t, err)
	assert.Equal(t, "0", id)

	_, err = resolveNamedID("unit", "aire9", map[string]string{"AIRE_1": "0", "AIRE2": "1"})
	assert.ErrorContains(t, err, "Available: AIRE2, AIRE_1")
}

func startServer(t *testing.T, dir string) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	plugin := ircodes.NewPlugin(profiles.NewDirStore(dir), zerolog.Nop())
	server := grpc.NewServer()
	require.NoError(t, plugin.RegisterGRPC(server))
	require.NoError(t, core.NewRegistryService([]core.Plugin{plugin}).Register(server))
	reflection.Register(server)

	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)
	return lis.Addr().String()
}

func TestRemoteCommands(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)
	addr := startServer(t, dir)

	out, err := run(t, "--addr", addr, "--json", "plugins", "list")
	require.NoError(t, err)
	var list core.PluginList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Plugins, 1)
	assert.Equal(t, "ircodes", list.Plugins[0].PluginID)

	out, err = run(t, "--addr", addr, "services")
	require.NoError(t, err)
	assert.Contains(t, out, ircodes.API.FullName())
	assert.Contains(t, out, core.RegistryAPI.FullName())

	out, err = run(t, "--addr", addr, "--json", "tables", "list", "bedroom")
	require.NoError(t, err)
	var tables ircodes.TableList
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Len(t, tables.Tables, 2)

	out, err = run(t, "--addr", addr, "call", core.RegistryAPI.FullName()+"/ListPlugins", "-d", "{}")
	require.NoError(t, err)
	assert.Contains(t, out, "IR code tables")

	_, err = run(t, "--addr", addr, "tables", "get", "bedroom", "aire9")
	assert.Error(t, err)
}

func TestSecretsStore(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--profiles", dir, "template", "bedroom")
	require.NoError(t, err)

	repo := t.TempDir()
	fake := filepath.Join(t.TempDir(), "agenix")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\ncat > \"$2\"\n"), 0o755))

	_, err = run(t, "--profiles", dir, "secrets", "store", "bedroom", "--repo", repo, "--agenix", fake, "--skip-rules")
	assert.True(t, errors.Is(err, headers.ErrNotReady))

	out, err := run(t, "--profiles", dir, "secrets", "store", "bedroom",
		"--repo", repo, "--agenix", fake, "--skip-rules", "--allow-template", "--include-ir")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(repo, "climatelink-bedroom-config-h.age"))
	assert.Contains(t, out, filepath.Join(repo, "climatelink-bedroom-ir_codes-h.age"))

	data, err := os.ReadFile(filepath.Join(repo, "climatelink-bedroom-config-h.age"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "PUT_YOUR_BLYNK_TOKEN")
}
