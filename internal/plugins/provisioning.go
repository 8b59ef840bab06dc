package plugins

import (
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/logging"
	"github.com/joshp123/climatelink/plugins/provisioning"
)

func init() {
	Register(func(deps Deps) (core.Plugin, bool) {
		return provisioning.NewPlugin(provisioning.Options{
			Config:   deps.Config.Provisioning,
			Store:    deps.Store,
			Ledger:   deps.Ledger,
			Notifier: deps.Notifier,
			Log:      logging.Component(deps.Log, "provisioning"),
		}), true
	})
}
