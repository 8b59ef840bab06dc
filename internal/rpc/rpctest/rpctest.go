// Package rpctest serves rpc.Services over an in-memory listener for tests.
package rpctest

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/test/bufconn"
)

// Registrar is anything that can put itself on a grpc.Server.
type Registrar interface {
	Register(*grpc.Server) error
}

// Dial starts a server with reflection and the given registrars and returns
// a client connection. Both are torn down with the test.
func Dial(t testing.TB, registrars ...Registrar) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	reflection.Register(server)
	for _, r := range registrars {
		if err := r.Register(server); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
