package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Timeouts for the wrapped http.Server. Zero values keep net/http's
// defaults (no timeout).
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// DefaultTimeouts suits short JSON and static responses.
var DefaultTimeouts = Timeouts{
	Read:  15 * time.Second,
	Write: 60 * time.Second,
	Idle:  60 * time.Second,
}

// Server wraps http.Server with validation, an explicit bind step and
// graceful shutdown.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// New creates a new HTTP server with the given address and handler.
// The address is validated before creating the server.
func New(addr string, handler http.Handler, timeouts Timeouts) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.Read,
			ReadTimeout:       timeouts.Read,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
	}

	return srv, nil
}

// Listen binds the listening socket. A port already in use is reported here,
// before any request is accepted.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.server.Addr, err)
	}

	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Serve accepts connections until Shutdown. It binds first if Listen was not
// called. Returns an error unless the server is shut down cleanly.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	err := s.server.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server with a 5-second timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)

	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
