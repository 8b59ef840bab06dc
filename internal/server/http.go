package server

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer serves health, metrics, and dashboards.
type HTTPServer struct {
	Server *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{Server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *HTTPServer) ListenAndServe() error {
	return s.Server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
