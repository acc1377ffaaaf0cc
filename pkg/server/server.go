// Package server runs the optional status HTTP server alongside a batch run
// so long imports can be watched and scraped.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/shread/internal/api"
)

// Options configures the status server.
type Options struct {
	// Addr is the listen address, e.g. ":9090" (required).
	Addr string

	// Status reports run progress on /status.
	Status api.StatusSource

	// Gatherer backs /metrics.
	// Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is the status server.
type Server struct {
	router   chi.Router
	http     *http.Server
	listener net.Listener
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a status server and binds its listener.
func New(opts Options) (*Server, error) {
	if opts.Addr == "" {
		return nil, errors.New("status server address is required")
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	handlers := api.NewHandlers(opts.Status, opts.Gatherer, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}
	return &Server{
		router:   router,
		listener: ln,
		timeout:  opts.ShutdownTimeout,
		logger:   opts.Logger,
		http: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Serve blocks serving requests until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", slog.String("addr", s.Addr()))
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("status server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown error: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}
