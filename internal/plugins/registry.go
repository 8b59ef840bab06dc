package plugins

import (
	"github.com/rs/zerolog"

	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/ledger"
	"github.com/joshp123/climatelink/internal/notify"
	"github.com/joshp123/climatelink/internal/profiles"
)

// Deps are the shared services plugin factories build on. Ledger and
// Notifier are nil when not configured.
type Deps struct {
	Config   *config.Config
	Store    profiles.Store
	Ledger   *ledger.Ledger
	Notifier *notify.Notifier
	Log      zerolog.Logger
}

// Factory builds a plugin instance from the loaded config.
type Factory func(Deps) (core.Plugin, bool)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(deps Deps) []core.Plugin {
	if deps.Config == nil {
		return nil
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, ok := factory(deps)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
