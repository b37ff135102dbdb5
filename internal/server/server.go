// Package server provides the HTTP surface of the catalogue service. It
// includes Gin-based routing, middleware setup, and graceful shutdown
// handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/auth"
	"github.com/piwi3910/catweave/internal/config"
	"github.com/piwi3910/catweave/internal/lifecycle"
	"github.com/piwi3910/catweave/internal/middleware"
	"github.com/piwi3910/catweave/internal/observability"
	"github.com/piwi3910/catweave/internal/refcheck"
	"github.com/piwi3910/catweave/internal/storage"
	"github.com/piwi3910/catweave/internal/sweep"
	"github.com/piwi3910/catweave/internal/vocab"
)

// Server represents the HTTP server of the catalogue service.
//
// The server provides:
//   - Resource lifecycle endpoints (/v1/resources/*)
//   - Consistency sweep triggers (/v1/sweeps/*)
//   - Vocabulary endpoints (/v1/vocabularies/*)
//   - Health check endpoints (/health, /ready, /live)
//   - Prometheus metrics endpoint (/metrics)
//   - Request logging and recovery middleware
//   - Graceful shutdown support
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	router      *gin.Engine
	httpServer  *http.Server
	store       storage.Store
	guard       *lifecycle.Guard
	validator   *refcheck.Validator
	vocabStore  *vocab.Store
	sweepRunner *sweep.Runner
	rateLimiter *middleware.RateLimiter
	healthCheck *observability.HealthChecker

	shutdownOnce sync.Once
}

// Options carries the collaborators the server routes to.
type Options struct {
	Store       storage.Store
	Guard       *lifecycle.Guard
	Validator   *refcheck.Validator
	VocabStore  *vocab.Store
	SweepRunner *sweep.Runner

	// RateLimiter is optional; when nil no rate limiting is applied.
	RateLimiter *middleware.RateLimiter

	// RegistryPing is optional; when set the PID registry is included in
	// health reporting.
	RegistryPing func(ctx context.Context) error
}

// New creates a new Server instance. It initializes the Gin router, sets up
// middleware, and configures routes.
//
// The function will panic if essential dependencies are missing.
func New(cfg *config.Config, logger *zap.Logger, opts Options) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if opts.Store == nil {
		panic("store cannot be nil")
	}
	if opts.Guard == nil {
		panic("guard cannot be nil")
	}
	if opts.Validator == nil {
		panic("validator cannot be nil")
	}

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	srv := &Server{
		config:      cfg,
		logger:      logger,
		router:      router,
		store:       opts.Store,
		guard:       opts.Guard,
		validator:   opts.Validator,
		vocabStore:  opts.VocabStore,
		sweepRunner: opts.SweepRunner,
		rateLimiter: opts.RateLimiter,
		healthCheck: initHealthChecker(opts),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

// initHealthChecker initializes the health checker with component checks.
func initHealthChecker(opts Options) *observability.HealthChecker {
	checker := observability.NewHealthChecker("1.0.0")

	checker.RegisterHealthCheck("storage", observability.StoreHealthCheck(opts.Store.Ping))
	checker.RegisterReadinessCheck("storage", observability.StoreHealthCheck(opts.Store.Ping))

	if opts.VocabStore != nil {
		checker.RegisterHealthCheck("vocabularies", opts.VocabStore.Ping)
	}

	if opts.RegistryPing != nil {
		checker.RegisterHealthCheck("pid-registry", observability.RegistryHealthCheck(opts.RegistryPing))
	}

	return checker
}

// setupMiddleware configures middleware for the Gin router.
// Middleware is executed in the order they are added.
func (s *Server) setupMiddleware() {
	// Recovery middleware - must be first to catch panics
	s.router.Use(s.recoveryMiddleware())

	// Request logging middleware
	s.router.Use(s.loggingMiddleware())

	// Metrics middleware (if enabled)
	if s.config.Observability.Metrics.Enabled {
		s.router.Use(s.metricsMiddleware())
	}

	// Security response headers
	s.router.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()))

	// Actor identity and request ID extraction
	s.router.Use(auth.Middleware(s.logger))

	// Distributed rate limiting (if configured)
	if s.rateLimiter != nil {
		s.router.Use(s.rateLimiter.Middleware())
	}
}

// Start starts the HTTP server and blocks until it is shut down. It
// supports graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server",
			zap.String("address", addr),
			zap.String("mode", s.config.Server.GinMode),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received",
			zap.String("signal", sig.String()),
		)
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server. It waits for active
// requests to complete or until the shutdown timeout expires, and stops the
// background sweep runner. Safe to call multiple times.
func (s *Server) Shutdown() error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout),
		)

		if s.sweepRunner != nil {
			s.sweepRunner.Stop()
		}

		ctx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during shutdown", zap.Error(err))
			shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
			return
		}

		s.logger.Info("server shutdown complete")
	})

	return shutdownErr
}

// Router returns the underlying Gin router.
// This is useful for testing and adding custom routes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// recoveryMiddleware recovers from panics and logs the error.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		s.logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				s.logger.Error("request error", zap.Error(e.Err))
			}
		}
	}
}

// metricsMiddleware collects Prometheus metrics for HTTP requests.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		observability.IncHTTPInFlight()
		defer observability.DecHTTPInFlight()

		c.Next()

		observability.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
