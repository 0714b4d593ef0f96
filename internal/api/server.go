// Package api provides the HTTP REST API for the court rotation service.
//
// It exposes automation lifecycle operations (start, stop, status), a
// manual tick trigger, court listings, and health probes.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/infrastructure/config"
	"github.com/nerrad567/court-rotation/internal/infrastructure/logging"
	"github.com/nerrad567/court-rotation/internal/rotation"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CourtLister is the slice of the reservation client the API needs for
// the courts listing endpoint.
type CourtLister interface {
	ListCourts(ctx context.Context) ([]courtapi.Court, error)
}

// TickTrigger forces a rotation tick, typically via the scheduler so the
// tick runs on its loop.
type TickTrigger interface {
	Trigger(ctx context.Context) rotation.TickReport
}

// HealthChecker reports whether a dependency is reachable. The session
// store and the history database both satisfy it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HistoryReader serves the audit log endpoints. May be nil when history
// is disabled.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]rotation.TickRecord, error)
	BySession(ctx context.Context, sessionID string, limit int) ([]rotation.TickRecord, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Manager *rotation.Manager
	Courts  CourtLister
	Ticker  TickTrigger
	Store   HealthChecker // optional, reported in /health
	History HistoryReader // optional, enables /automation/history
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	manager *rotation.Manager
	courts  CourtLister
	ticker  TickTrigger
	store   HealthChecker
	history HistoryReader
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("rotation manager is required")
	}
	if deps.Ticker == nil {
		return nil, fmt.Errorf("tick trigger is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		manager: deps.Manager,
		courts:  deps.Courts,
		ticker:  deps.Ticker,
		store:   deps.Store,
		history: deps.History,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
