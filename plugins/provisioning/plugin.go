package provisioning

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/ledger"
	"github.com/joshp123/climatelink/internal/notify"
	"github.com/joshp123/climatelink/internal/profiles"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

const healthTimeout = 5 * time.Second

// Options wires the plugin to shared services. Ledger and Notifier may be nil.
type Options struct {
	Config   *config.ProvisioningConfig
	Store    profiles.Store
	Ledger   *ledger.Ledger
	Notifier *notify.Notifier
	Log      zerolog.Logger
}

// Plugin implements the climatelink plugin contract.
type Plugin struct {
	svc       *service
	collector *MetricsCollector
	log       zerolog.Logger
	unsub     func()

	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs the provisioning plugin. When a notifier is present
// it also answers check requests published to <prefix>/<profile>/check.
func NewPlugin(opts Options) *Plugin {
	if opts.Store == nil {
		return &Plugin{health: core.HealthError, healthMessage: "profile store is required"}
	}

	svc := &service{store: opts.Store, ledger: opts.Ledger, notifier: opts.Notifier, log: opts.Log}
	if opts.Config != nil {
		svc.renderDir = opts.Config.RenderDir
	}
	p := &Plugin{
		svc:       svc,
		collector: NewMetricsCollector(opts.Store),
		log:       opts.Log,
		health:    core.HealthHealthy,
	}

	unsub, err := opts.Notifier.OnCheck(p.handleCheckRequest)
	if err != nil {
		p.health = core.HealthDegraded
		p.healthMessage = fmt.Sprintf("subscribe check requests: %v", err)
		opts.Log.Warn().Err(err).Msg("subscribe check requests")
	}
	p.unsub = unsub
	return p
}

func (p *Plugin) ID() string {
	return "provisioning"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "provisioning",
		DisplayName: "Firmware provisioning",
		Version:     "0.1.0",
		Services:    []string{API.FullName()},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "provisioning-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) error {
	if p.svc == nil {
		return nil
	}
	return RegisterProvisioningService(server, p.svc)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.collector == nil {
		return nil
	}
	return []prometheus.Collector{p.collector, renderTotal}
}

// Health is DEGRADED while any profile is not ready or cannot be decoded.
func (p *Plugin) Health() core.HealthStatus {
	status, _ := p.evaluate()
	return status
}

func (p *Plugin) HealthMessage() string {
	_, msg := p.evaluate()
	return msg
}

// Close stops listening for check requests.
func (p *Plugin) Close() {
	if p.unsub != nil {
		p.unsub()
	}
}

func (p *Plugin) evaluate() (core.HealthStatus, string) {
	if p.svc == nil || p.health == core.HealthError {
		return p.health, p.healthMessage
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	list, err := p.svc.ListProfiles(ctx)
	if err != nil {
		return core.HealthError, err.Error()
	}

	var notReady []string
	for _, s := range list.Profiles {
		if !s.Ready {
			notReady = append(notReady, s.Name)
		}
	}
	if len(notReady) > 0 {
		return core.HealthDegraded, fmt.Sprintf("%d of %d profiles not ready: %s",
			len(notReady), len(list.Profiles), strings.Join(notReady, ", "))
	}
	if p.health != core.HealthHealthy {
		return p.health, p.healthMessage
	}
	return core.HealthHealthy, ""
}

func (p *Plugin) handleCheckRequest(profile string) {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if _, err := p.svc.CheckProfile(ctx, profile); err != nil {
		p.log.Warn().Err(err).Str("profile", profile).Msg("check request")
	}
}
