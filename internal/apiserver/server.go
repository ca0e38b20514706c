// Package apiserver serves the HTTP control API: health and readiness
// probes, supervisor status, Prometheus metrics and restart/shutdown
// requests.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// Config holds the settings of an http component.
type Config struct {
	// Address to bind, e.g. "127.0.0.1". Empty binds all interfaces.
	Address string `mapstructure:"address"`

	// Port to listen on. 0 picks a free port.
	Port int `mapstructure:"port"`

	// ControlRate is the sustained rate of /v1 requests per second.
	ControlRate float64 `mapstructure:"control_rate"`

	// ControlBurst is the burst size of /v1 requests.
	ControlBurst int `mapstructure:"control_burst"`
}

// ApplyDefaults fills unset rate limits.
func (c *Config) ApplyDefaults() {
	if c.ControlRate <= 0 {
		c.ControlRate = 1
	}
	if c.ControlBurst <= 0 {
		c.ControlBurst = 3
	}
}

// Server is a lifecycle component serving the control API.
type Server struct {
	name     string
	cfg      Config
	logger   *logging.Logger
	control  lifecycle.Control
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	handler  http.Handler
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server. gatherer backs /metrics.
func New(name string, cfg Config, ctl lifecycle.Control, gatherer prometheus.Gatherer) *Server {
	cfg.ApplyDefaults()
	s := &Server{
		name:     name,
		cfg:      cfg,
		logger:   logging.GetLogger("apiserver").WithField("component", name),
		control:  ctl,
		gatherer: gatherer,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ControlRate), cfg.ControlBurst),
	}
	s.handler = s.routes()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Name implements lifecycle.Component.
func (s *Server) Name() string { return s.name }

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the port and serves in the background. A bind failure fails
// the start.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	addr := net.JoinHostPort(s.cfg.Address, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	s.logger.Info("Control API listening on %s", ln.Addr())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("Control API stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Control API shutdown timeout")
		return ctx.Err()
	}
}
