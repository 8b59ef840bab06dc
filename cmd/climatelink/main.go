package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/logging"
	"github.com/joshp123/climatelink/internal/plugins"
	"github.com/joshp123/climatelink/internal/profiles"
	"github.com/joshp123/climatelink/internal/router"
	"github.com/joshp123/climatelink/internal/server"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	runServer := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return err
		}
		log, err := logging.New(cfg.Core.LogLevel, os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg, log); err != nil {
			log.Error().Err(err).Msg("server exited")
			return err
		}
		return nil
	}

	root := &cobra.Command{
		Use:           "climatelink",
		Short:         "Serve climate relay firmware profiles over gRPC and HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runServer,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOrDefault("CLIMATELINK_CONFIG", config.DefaultPath), "config file path")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the server (the default)",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	})
	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config: %v\n", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: plugins=%v profiles=%s\n", cfg.Core.Plugins, cfg.Profiles.Dir)
			return nil
		},
	})

	return root
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	deps, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	enabled := config.EnabledPlugins(cfg)
	compiled := plugins.Compiled(deps)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	for _, p := range active {
		log.Info().Str("plugin", p.ID()).Str("health", string(p.Health())).Msg("plugin enabled")
	}

	if n, err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warn().Err(err).Msg("write dashboards")
	} else if n > 0 {
		log.Info().Int("count", n).Str("dir", cfg.Core.DashboardDir).Msg("dashboards written")
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, logging.Component(log, "grpc"))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	if err := router.RegisterPlugins(grpcServer.Server, active); err != nil {
		return err
	}

	shared := append(profiles.MetricsCollectors(), core.BuildInfo(version))
	metricsRegistry := core.MetricsRegistry(active, shared...)

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewMux(active, metricsRegistry))

	errs := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.Core.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.Core.GRPCAddr).Msg("grpc listening")
		if err := grpcServer.Serve(); err != nil {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcServer.Server.GracefulStop()
	core.ClosePlugins(active)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
