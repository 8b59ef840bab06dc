package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joshp123/climatelink/internal/blob"
	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/ledger"
	"github.com/joshp123/climatelink/internal/logging"
	"github.com/joshp123/climatelink/internal/notify"
	"github.com/joshp123/climatelink/internal/plugins"
	"github.com/joshp123/climatelink/internal/profiles"
)

// buildDeps opens the optional blob mirror, ledger and MQTT connection. The
// returned cleanup closes whatever was opened.
func buildDeps(ctx context.Context, cfg *config.Config, log zerolog.Logger) (plugins.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := plugins.Deps{Config: cfg, Log: log}

	local := profiles.NewDirStore(cfg.Profiles.Dir)
	deps.Store = local
	if cfg.Blob != nil {
		remote, err := blob.NewS3Store(cfg.Blob)
		if err != nil {
			return plugins.Deps{}, cleanup, fmt.Errorf("blob store: %w", err)
		}
		mirror, err := profiles.NewMirror(local, remote, logging.Component(log, "mirror"))
		if err != nil {
			return plugins.Deps{}, cleanup, err
		}
		deps.Store = mirror
		log.Info().Str("bucket", cfg.Blob.Bucket).Str("prefix", cfg.Blob.Prefix).Msg("profile mirror enabled")
	}

	if cfg.Ledger != nil {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			cleanup()
			return plugins.Deps{}, func() {}, err
		}
		closers = append(closers, func() { _ = l.Close() })
		deps.Ledger = l
	}

	if cfg.MQTT != nil {
		client, err := notify.Dial(ctx, cfg.MQTT)
		if err != nil {
			cleanup()
			return plugins.Deps{}, func() {}, err
		}
		closers = append(closers, client.Close)
		deps.Notifier = notify.NewNotifier(client, cfg.MQTT.TopicPrefix, logging.Component(log, "notify"))
		if client.Connected() {
			log.Info().Str("broker", cfg.MQTT.Broker).Msg("mqtt notifications enabled")
		} else {
			log.Warn().Str("broker", cfg.MQTT.Broker).Msg("mqtt broker unreachable, retrying in background")
		}
	}

	return deps, cleanup, nil
}
