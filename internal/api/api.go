// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/beaconhq/beacon/internal/api/events"
	"github.com/beaconhq/beacon/internal/api/health"
	"github.com/beaconhq/beacon/internal/notifier"
	"github.com/beaconhq/beacon/internal/outbound"
	"github.com/beaconhq/beacon/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address          string
	Verbose          bool
	IngestRate       float64       // events accepted per second across all clients, 0 disables
	IngestBurst      int           // burst allowance for IngestRate
	PurgeInterval    time.Duration // how often expired events are deleted
	HistoryRetention time.Duration // dispatch history older than this is deleted
	ShutdownTimeout  time.Duration
	Outbound         outbound.Options
	Version          string
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.IngestBurst == 0 {
		c.IngestBurst = 50
	}
	if c.PurgeInterval == 0 {
		c.PurgeInterval = time.Hour
	}
	if c.HistoryRetention == 0 {
		c.HistoryRetention = 30 * 24 * time.Hour
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Storage    storage.Storage
	Dispatcher events.Dispatcher
	Registry   *notifier.Registry
	// Drainer flushes per-request outbound queues after responses are
	// written. With nil the flush runs before the response completes.
	Drainer *outbound.Drainer
	Logger  *zap.Logger
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("sender registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	cfg.SetDefaults()
	if cfg.Outbound.Logger == nil {
		cfg.Outbound.Logger = deps.Logger.Named("outbound")
	}

	s := &Server{
		config:        cfg,
		deps:          deps,
		logger:        deps.Logger,
		healthHandler: health.NewHandler(cfg.Version),
	}
	s.healthHandler.RegisterChecker(health.NewStorageChecker(deps.Storage))

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and the purge loop, and blocks until ctx is
// canceled. On shutdown it waits for in-flight notification flushes.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go s.purgeLoop(purgeCtx)

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		if s.deps.Drainer != nil {
			if werr := s.deps.Drainer.Wait(shutdownCtx); werr != nil {
				s.logger.Warn("outbound flushes still running at shutdown", zap.Error(werr))
			}
		}
		return err
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
