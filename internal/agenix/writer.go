// Package agenix stores rendered headers that carry credentials in a
// nix-secrets repository, encrypted with agenix.
package agenix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	secretPrefix = "climatelink-"
	secretSuffix = ".age"
	defaultExec  = "agenix"
)

var recipientsPattern = regexp.MustCompile(`"` + secretPrefix + `[^"]+\.age"\s*\.publicKeys\s*=\s*\[([^\]]+)\]`)

// Writer encrypts files into a nix-secrets repo. Recipients default to
// those of an existing climatelink secret in secrets.nix.
type Writer struct {
	RepoPath   string
	RulesPath  string
	Recipients []string
	Exec       string
	SkipUpdate bool
}

// Stored is one file written by Store.
type Stored struct {
	File   string `json:"file"`
	Secret string `json:"secret"`
	Path   string `json:"path"`
}

// SecretName is the .age file name for one rendered file of a profile, e.g.
// climatelink-bedroom-config-h.age.
func SecretName(profile, file string) string {
	file = strings.NewReplacer(".", "-", "/", "-").Replace(file)
	return secretPrefix + profile + "-" + file + secretSuffix
}

// Store encrypts each of files under SecretName(profile, name), in name
// order. It stops at the first failure and returns what was stored so far.
func (w Writer) Store(ctx context.Context, profile string, files map[string][]byte) ([]Stored, error) {
	if profile == "" {
		return nil, fmt.Errorf("agenix profile is required")
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	recipients, err := w.recipients()
	if err != nil {
		return nil, err
	}

	var out []Stored
	for _, name := range names {
		secret := SecretName(profile, name)
		path, err := w.write(ctx, secret, files[name], recipients)
		if err != nil {
			return out, fmt.Errorf("store %s: %w", name, err)
		}
		out = append(out, Stored{File: name, Secret: secret, Path: path})
	}
	return out, nil
}

// Write encrypts plaintext into <repo>/<secretName> and returns the path.
// Unless SkipUpdate is set, secrets.nix gains an entry for the secret.
func (w Writer) Write(ctx context.Context, secretName string, plaintext []byte) (string, error) {
	recipients, err := w.recipients()
	if err != nil {
		return "", err
	}
	return w.write(ctx, secretName, plaintext, recipients)
}

func (w Writer) write(ctx context.Context, secretName string, plaintext []byte, recipients []string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("agenix secret name is required")
	}
	if strings.ContainsAny(secretName, `/\`) {
		return "", fmt.Errorf("agenix secret name %q must not contain a path", secretName)
	}
	if !strings.HasSuffix(secretName, secretSuffix) {
		secretName += secretSuffix
	}

	if !w.SkipUpdate {
		if err := EnsureSecretEntry(w.rulesPath(), secretName, recipients); err != nil {
			return "", err
		}
	}

	secretPath := filepath.Join(w.RepoPath, secretName)
	if err := w.encrypt(ctx, secretPath, plaintext); err != nil {
		return "", err
	}
	return secretPath, nil
}

// recipients validates the repo and resolves recipients once per call.
func (w Writer) recipients() ([]string, error) {
	if w.RepoPath == "" {
		return nil, fmt.Errorf("agenix repo path is required")
	}
	if w.SkipUpdate || len(w.Recipients) > 0 {
		return w.Recipients, nil
	}
	return DefaultRecipients(w.rulesPath())
}

// encrypt runs agenix with an EDITOR that copies stdin, so the plaintext
// never touches disk unencrypted.
func (w Writer) encrypt(ctx context.Context, secretPath string, plaintext []byte) error {
	execName := w.Exec
	if execName == "" {
		execName = defaultExec
	}

	cmd := exec.CommandContext(ctx, execName, "-e", secretPath)
	cmd.Dir = w.RepoPath
	cmd.Env = append(os.Environ(),
		"RULES="+w.rulesPath(),
		"EDITOR=cp /dev/stdin",
	)
	cmd.Stdin = bytes.NewReader(plaintext)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("agenix: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (w Writer) rulesPath() string {
	if w.RulesPath != "" {
		return w.RulesPath
	}
	return filepath.Join(w.RepoPath, "secrets.nix")
}

// EnsureSecretEntry appends `"<secretName>".publicKeys = [ ... ];` before
// the closing brace of secrets.nix unless an entry already exists. The
// file keeps its permissions.
func EnsureSecretEntry(rulesPath, secretName string, recipients []string) error {
	info, err := os.Stat(rulesPath)
	if err != nil {
		return fmt.Errorf("stat secrets.nix: %w", err)
	}
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("read secrets.nix: %w", err)
	}
	existing := regexp.MustCompile(regexp.QuoteMeta(`"`+secretName+`"`) + `\s*\.publicKeys`)
	if existing.Match(content) {
		return nil
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients available for %s", secretName)
	}

	idx := bytes.LastIndex(content, []byte("\n}"))
	if idx == -1 {
		return fmt.Errorf("secrets.nix missing closing brace")
	}

	var updated bytes.Buffer
	updated.Write(content[:idx])
	fmt.Fprintf(&updated, "\n  %q.publicKeys = [ %s ];\n", secretName, strings.Join(recipients, " "))
	updated.Write(content[idx:])

	return os.WriteFile(rulesPath, updated.Bytes(), info.Mode().Perm())
}

// DefaultRecipients reuses the recipients of an existing climatelink secret
// in secrets.nix.
func DefaultRecipients(rulesPath string) ([]string, error) {
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("read secrets.nix: %w", err)
	}
	match := recipientsPattern.FindSubmatch(content)
	if len(match) < 2 {
		return nil, fmt.Errorf("no %s recipients found in secrets.nix", strings.TrimSuffix(secretPrefix, "-"))
	}
	fields := strings.Fields(string(match[1]))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty recipient list in secrets.nix")
	}
	return fields, nil
}
