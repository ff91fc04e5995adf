package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"axectl/internal/logging"
	"axectl/internal/ops"
)

// Config holds the server configuration
type Config struct {
	// Listen is the host:port to bind. The API has no authentication, so
	// the default binds loopback only.
	Listen string

	// PollParallel caps concurrent device fetches behind the stats
	// endpoints.
	PollParallel int

	// StreamInterval is the cadence of the websocket stats stream.
	StreamInterval time.Duration
}

// Server exposes the fleet over a local HTTP API: device listing,
// discovery, stats polling, bulk commands, a websocket stats stream, and
// Prometheus metrics.
type Server struct {
	config  *Config
	svc     *ops.Service
	metrics *fleetMetrics
	httpSrv *http.Server
}

// New creates a new Server instance
func New(config *Config, svc *ops.Service) (*Server, error) {
	if config.Listen == "" {
		config.Listen = "127.0.0.1:8720"
	}
	if config.PollParallel <= 0 {
		config.PollParallel = 10
	}
	if config.StreamInterval <= 0 {
		config.StreamInterval = 5 * time.Second
	}

	s := &Server{
		config:  config,
		svc:     svc,
		metrics: newFleetMetrics(),
	}
	s.httpSrv = &http.Server{
		Addr:              config.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	logging.Info("Starting axectl API server",
		zap.String("addr", s.config.Listen),
	)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server, letting in-flight requests finish
// and persisting the device cache.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop http server: %w", err)
	}
	if err := s.svc.SaveCache(); err != nil {
		logging.Warn(fmt.Sprintf("failed to persist device cache on shutdown: %v", err))
	}
	logging.Info("Server stopped")
	return nil
}
