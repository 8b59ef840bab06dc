package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/profiles"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultAddr        = "localhost:9000"
	defaultProfilesDir = "profiles"
)

// cliEnv resolves settings from flags, environment and the server config.
type cliEnv struct {
	v      *viper.Viper
	stdout io.Writer
	loaded bool
	cfg    *config.Config
}

func (e *cliEnv) serverConfig() *config.Config {
	if e.loaded {
		return e.cfg
	}
	e.loaded = true
	for _, path := range e.configSearchPaths() {
		if cfg, err := config.Load(path); err == nil {
			e.cfg = cfg
			return cfg
		}
	}
	return nil
}

func (e *cliEnv) configSearchPaths() []string {
	if path := e.v.GetString("config"); path != "" {
		return []string{path}
	}
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "climatelink", "config.yaml"))
	}
	return paths
}

func (e *cliEnv) addr() string {
	if addr := e.v.GetString("addr"); addr != "" {
		return addr
	}
	if cfg := e.serverConfig(); cfg != nil {
		return dialableAddr(cfg.Core.GRPCAddr)
	}
	return defaultAddr
}

func (e *cliEnv) profilesDir() string {
	if dir := e.v.GetString("profiles"); dir != "" {
		return dir
	}
	if cfg := e.serverConfig(); cfg != nil {
		return cfg.Profiles.Dir
	}
	return defaultProfilesDir
}

func (e *cliEnv) store() *profiles.DirStore {
	return profiles.NewDirStore(e.profilesDir())
}

func (e *cliEnv) output() outputMode {
	return outputMode{json: e.v.GetBool("json"), w: e.stdout}
}

// dial connects to the server; the returned context bounds the call.
func (e *cliEnv) dial(parent context.Context) (context.Context, *grpc.ClientConn, func(), error) {
	timeout := e.v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	conn, err := grpcurl.BlockingDial(ctx, "tcp", e.addr(), insecure.NewCredentials())
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("dial %s: %w", e.addr(), err)
	}
	return ctx, conn, func() {
		_ = conn.Close()
		cancel()
	}, nil
}

// dialableAddr turns a listen address such as 0.0.0.0:9000 or :9000 into
// one a client can dial.
func dialableAddr(listen string) string {
	host, port, found := strings.Cut(listen, ":")
	if !found {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "[::]" {
		host = "localhost"
	}
	return host + ":" + port
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	needle := normalizeName(input)
	for label, id := range options {
		if normalizeName(label) == needle {
			return id, nil
		}
	}
	available := make([]string, 0, len(options))
	for label := range options {
		available = append(available, label)
	}
	sort.Strings(available)
	return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}

// normalizeUnit turns user input like "aire-3" into a header unit, AIRE_3.
func normalizeUnit(input string) string {
	return strings.ToUpper(normalizeName(input))
}
