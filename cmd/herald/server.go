package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
)

type serverOption func(*server)

func withAddr(addr string) serverOption {
	return func(s *server) {
		s.addr = addr
	}
}

func withPipeline(pipeline *herald.Pipeline) serverOption {
	return func(s *server) {
		s.pipeline = pipeline
	}
}

type server struct {
	addr     string
	pipeline *herald.Pipeline
	mux      *http.ServeMux
}

func newServer(opts ...serverOption) *server {
	s := &server{
		addr: ":8080",
		mux:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("POST /api/command/confirm", s.handleConfirm)
	s.mux.HandleFunc("POST /api/command/device-result", s.handleDeviceResult)
}

func (s *server) handler() http.Handler {
	return s.mux
}

func (s *server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.Value("addr", s.addr))
	}

	slog.Info("starting command pipeline server", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return goerr.Wrap(err, "server error")
	}

	return nil
}
