package server

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps a gRPC server and listener.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
}

func NewGRPCServer(addr string, log zerolog.Logger) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(logUnary(log)))
	reflection.Register(s)

	return &GRPCServer{Server: s, Listener: ln}, nil
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

func logUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		event := log.Debug()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("took", time.Since(start)).
			Msg("grpc call")
		return resp, err
	}
}
