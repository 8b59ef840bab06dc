package plugins

import (
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/logging"
	"github.com/joshp123/climatelink/plugins/ircodes"
)

func init() {
	Register(func(deps Deps) (core.Plugin, bool) {
		return ircodes.NewPlugin(deps.Store, logging.Component(deps.Log, "ircodes")), true
	})
}
