package agenix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules = `let
  host = "ssh-ed25519 AAAAhost";
  admin = "age1admin";
in
{
  "climatelink-attic-config-h.age".publicKeys = [ host admin ];
}
`

func TestSecretName(t *testing.T) {
	assert.Equal(t, "climatelink-bedroom-config-h.age", SecretName("bedroom", "config.h"))
}

func TestDefaultRecipients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.nix")
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o644))

	got, err := DefaultRecipients(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "admin"}, got)

	require.NoError(t, os.WriteFile(path, []byte("{\n}\n"), 0o644))
	_, err = DefaultRecipients(path)
	assert.Error(t, err)
}

func TestEnsureSecretEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.nix")
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o640))

	require.NoError(t, EnsureSecretEntry(path, "climatelink-bedroom-config-h.age", []string{"host"}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"climatelink-bedroom-config-h.age".publicKeys = [ host ];`)

	// idempotent
	require.NoError(t, EnsureSecretEntry(path, "climatelink-bedroom-config-h.age", []string{"host"}))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(content), string(again))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestWriteRunsAgenix(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "secrets.nix"), []byte(rules), 0o644))

	// Stand-in for agenix: "-e <path>" with the plaintext on stdin.
	fake := filepath.Join(t.TempDir(), "agenix")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\ncat > \"$2\"\n"), 0o755))

	w := Writer{RepoPath: repo, Exec: fake}
	path, err := w.Write(context.Background(), SecretName("bedroom", "config.h"), []byte("#pragma once\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repo, "climatelink-bedroom-config-h.age"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#pragma once\n", string(data))

	content, err := os.ReadFile(filepath.Join(repo, "secrets.nix"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"climatelink-bedroom-config-h.age".publicKeys = [ host admin ];`)
}

func TestWriteRequiresRepo(t *testing.T) {
	_, err := Writer{}.Write(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestStoreWritesEveryFile(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "secrets.nix"), []byte(rules), 0o644))
	fake := filepath.Join(t.TempDir(), "agenix")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\ncat > \"$2\"\n"), 0o755))

	w := Writer{RepoPath: repo, Exec: fake, Recipients: []string{"host"}}
	stored, err := w.Store(context.Background(), "bedroom", map[string][]byte{
		"ir_codes.h": []byte("ir"),
		"config.h":   []byte("cfg"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "config.h", stored[0].File)
	assert.Equal(t, "climatelink-bedroom-ir_codes-h.age", stored[1].Secret)

	data, err := os.ReadFile(stored[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "ir", string(data))

	content, err := os.ReadFile(filepath.Join(repo, "secrets.nix"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"climatelink-bedroom-config-h.age".publicKeys = [ host ];`)
	assert.Contains(t, string(content), `"climatelink-bedroom-ir_codes-h.age".publicKeys = [ host ];`)
}

func TestWriteRejectsPaths(t *testing.T) {
	w := Writer{RepoPath: t.TempDir(), SkipUpdate: true}
	_, err := w.Write(context.Background(), "../escape.age", []byte("x"))
	assert.ErrorContains(t, err, "must not contain a path")
}
