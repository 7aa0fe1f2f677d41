// Package server wires the gateway together: configuration, the backend
// client, the dispatcher, the health monitor, the restructurer, and the
// HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/config"
	"github.com/pagegate/pagegate/internal/dispatch"
	"github.com/pagegate/pagegate/internal/executor"
	"github.com/pagegate/pagegate/internal/health"
	"github.com/pagegate/pagegate/internal/restructure"
	"github.com/pagegate/pagegate/internal/server/endpoints"
	"github.com/pagegate/pagegate/internal/svcctx"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server construction settings.
type Config struct {
	// Gateway is the loaded gateway configuration.
	Gateway *config.Config
	// Executor overrides the backend client built from Gateway.ExecutorURL.
	// Mostly for tests.
	Executor executor.Client
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		cfg.Gateway = config.DefaultConfig()
	}
	if err := cfg.Gateway.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	exec := cfg.Executor
	if exec == nil {
		exec = executor.NewHTTPClient(executor.HTTPConfig{BaseURL: cfg.Gateway.ExecutorURL})
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Executor:      exec,
		MaxConcurrent: cfg.Gateway.MaxConcurrentRequests,
		Timeout:       cfg.Gateway.InferenceTimeout(),
		Operations:    cfg.Gateway.Operations,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	monitor := health.New(health.Config{
		Checker: exec,
		Models:  cfg.Gateway.Models(),
		Timeout: cfg.Gateway.HealthCheckTimeout(),
		Logger:  cfg.Logger,
	})

	s := &Server{
		cfg:    cfg.Gateway,
		logger: cfg.Logger,
		services: &svcctx.Services{
			Dispatcher:   dispatcher,
			Monitor:      monitor,
			Restructurer: restructure.New(cfg.Logger),
			Logger:       cfg.Logger,
		},
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{Operations: cfg.Gateway.Operations}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	handler := s.withServices(mux)
	handler = s.withAccessLog(handler)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Minute, // large base64 document uploads
		IdleTimeout: 120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("initializing gateway",
		"executorUrl", s.cfg.ExecutorURL,
		"maxConcurrentRequests", s.cfg.MaxConcurrentRequests,
		"inferenceTimeout", s.cfg.InferenceTimeout(),
		"operations", s.cfg.Operations)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Dispatcher returns the request dispatcher.
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.services.Dispatcher
}

// Handler returns the fully assembled HTTP handler. Used by tests to
// exercise the surface without binding a socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := svcctx.WithServices(r.Context(), s.services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the gateway is fully wired.
// Returns 503 if the dispatcher isn't available.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil || s.services.Dispatcher == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"logId":"","errorCode":503,"errorMsg":"Gateway not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
