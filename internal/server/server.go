// Package server exposes the diagnostics HTTP API of a playback session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/zsiec/framesync/internal/config"
	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/internal/health"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/pool"
	"golang.org/x/time/rate"
)

// PoolView is the part of the frame pool the API reports on.
type PoolView interface {
	BufferStatus() (pool.Status, bool)
	Snapshot() pool.Snapshot
}

// SyncView is the part of the sync engine the API reports on and tunes.
type SyncView interface {
	Stats() avsync.Stats
	SetManualOffset(d time.Duration)
}

// ResetFunc empties the pool on behalf of the debug reset endpoint.
type ResetFunc func(destroyAll bool)

// Server serves health, status and debug endpoints over plain HTTP.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	logger       *logrus.Logger
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler

	pool  PoolView
	sync  SyncView
	reset ResetFunc

	// Mutating debug endpoints share one budget.
	debugLimiter *rate.Limiter

	routesOnce sync.Once
}

// New creates a server. sync and reset may be nil; the endpoints that need
// them then answer 503.
func New(cfg *config.ServerConfig, log *logrus.Logger, healthMgr *health.Manager, p PoolView, s SyncView, reset ResetFunc) *Server {
	if healthMgr == nil {
		healthMgr = health.NewManager(logger.NewLogrusAdapter(logrus.NewEntry(log)))
	}
	return &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		healthMgr:    healthMgr,
		errorHandler: apperrors.NewErrorHandler(logger.NewLogrusAdapter(logger.WithComponent(log, "http"))),
		pool:         p,
		sync:         s,
		reset:        reset,
		debugLimiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Handler returns the fully routed handler.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.ListenAddr, strconv.Itoa(s.config.Port))
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting diagnostics server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("diagnostics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down diagnostics server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Diagnostics server shutdown complete")
	return nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	// Health endpoints
	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.timeoutMiddleware(s.config.WriteTimeout))
	api.HandleFunc("/pool/status", s.handlePoolStatus).Methods("GET")
	api.HandleFunc("/pool/snapshot", s.handlePoolSnapshot).Methods("GET")
	api.HandleFunc("/sync/status", s.handleSyncStatus).Methods("GET")

	debug := api.NewRoute().Subrouter()
	debug.Use(s.debugOnlyMiddleware, s.rateLimitMiddleware)
	debug.HandleFunc("/pool/reset", s.handlePoolReset).Methods("POST")
	debug.HandleFunc("/sync/offset", s.handleSyncOffset).Methods("PUT")

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
