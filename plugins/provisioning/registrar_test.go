package provisioning

import "google.golang.org/grpc"

type registrar struct {
	plugin *Plugin
}

func (r registrar) Register(server *grpc.Server) error {
	return r.plugin.RegisterGRPC(server)
}
