package intake

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultReadHeaderTimeout bounds how long a client may take to send request headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// Server runs the intake handler until shut down.
type Server struct {
	server            http.Server
	handler           http.Handler
	addr              string
	readHeaderTimeout time.Duration
}

// ServerOption customises a Server.
type ServerOption func(s *Server)

// WithReadHeaderTimeout overrides DefaultReadHeaderTimeout.
func WithReadHeaderTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.readHeaderTimeout = timeout
		}
	}
}

// Start listens until Shutdown. A graceful shutdown is not reported as an error.
func (s *Server) Start() error {
	s.server.Addr = s.addr
	s.server.Handler = s.handler
	s.server.ReadHeaderTimeout = s.readHeaderTimeout
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// NewServer creates a server for the start and callback endpoints on addr.
func NewServer(addr string, handler http.Handler, options ...ServerOption) *Server {
	ret := &Server{
		addr:              addr,
		handler:           handler,
		readHeaderTimeout: DefaultReadHeaderTimeout,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}
