package ircodes

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/profiles"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin serves IR code tables read from profiles.
type Plugin struct {
	svc *service
	log zerolog.Logger
}

func NewPlugin(store profiles.Store, log zerolog.Logger) *Plugin {
	if store == nil {
		return &Plugin{log: log}
	}
	return &Plugin{svc: &service{store: store}, log: log}
}

func (p *Plugin) ID() string {
	return "ircodes"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "ircodes",
		DisplayName: "IR code tables",
		Version:     "0.1.0",
		Services:    []string{API.FullName()},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "ircodes-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) error {
	if p.svc == nil {
		return nil
	}
	return RegisterIRCodeService(server, p.svc)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.svc == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.svc.store)}
}

func (p *Plugin) Health() core.HealthStatus {
	if p.svc == nil {
		return core.HealthError
	}
	if p.brokenTables() > 0 {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (p *Plugin) HealthMessage() string {
	if p.svc == nil {
		return "profile store is required"
	}
	if n := p.brokenTables(); n > 0 {
		return fmt.Sprintf("%d code tables not deployable", n)
	}
	return ""
}

func (p *Plugin) brokenTables() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scanned, err := profiles.Scan(ctx, p.svc.store)
	if err != nil {
		p.log.Warn().Err(err).Msg("scan profiles")
		return 0
	}
	broken := 0
	for _, sc := range scanned {
		if sc.Err != nil {
			continue
		}
		for _, t := range sc.Entry.Profile.Tables {
			if t.Validate() != nil {
				broken++
			}
		}
	}
	return broken
}
