// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest serves the carwatch REST API: snapshot listing, diffs,
// on-demand cycles and Prometheus metrics.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/audit"
	"github.com/jeremyhahn/carwatch/pkg/server"
	"github.com/jeremyhahn/carwatch/pkg/server/middleware"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// Server represents the REST API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string

	// EnableCORS enables CORS middleware
	EnableCORS bool

	// EnableLogging enables request logging middleware
	EnableLogging bool

	// EnableRateLimit enables rate limiting middleware
	EnableRateLimit bool

	// RateLimitConfig is the rate limiting configuration
	RateLimitConfig *middleware.RateLimitConfig

	// EnableSecurityHeaders enables security headers middleware
	EnableSecurityHeaders bool

	// SecurityHeadersConfig is the security headers configuration
	SecurityHeadersConfig *middleware.SecurityHeadersConfig

	// EnableRequestID enables request ID middleware
	EnableRequestID bool

	// MaxRequestSize is the maximum request body size in bytes (default: 1MB)
	MaxRequestSize int64

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout must cover a full cycle when POST /api/v1/cycles is used.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown in Run (default: 10s)
	ShutdownTimeout time.Duration

	// Mode sets the Gin mode: "debug", "release", or "test" (default: "release")
	Mode string

	// Logger is the pluggable logger adapter (default: NoOpLogger)
	Logger adapters.Logger

	// Authenticator guards POST /api/v1/cycles (default: NoOpAuthenticator)
	Authenticator adapters.Authenticator

	// Gatherer is exposed at /metrics when set
	Gatherer prometheus.Gatherer

	// AuditLogger records API requests when set
	AuditLogger audit.AuditLogger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:                  ":8080",
		EnableCORS:            true,
		EnableLogging:         true,
		EnableRateLimit:       false,
		RateLimitConfig:       middleware.DefaultRateLimitConfig(),
		EnableSecurityHeaders: true,
		SecurityHeadersConfig: middleware.DefaultSecurityHeadersConfig(),
		EnableRequestID:       true,
		MaxRequestSize:        server.MaxRequestSize,
		ReadTimeout:           server.ReadTimeout,
		WriteTimeout:          server.WriteTimeout,
		IdleTimeout:           server.IdleTimeout,
		ShutdownTimeout:       server.ShutdownTimeout,
		Mode:                  gin.ReleaseMode,
		Logger:                adapters.NewNoOpLogger(),
		Authenticator:         adapters.NewNoOpAuthenticator(),
	}
}

// NewServer creates a new REST API server over store. runner may be nil to
// disable on-demand cycles.
func NewServer(store *snapshot.Store, runner CycleRunner, config *ServerConfig) (*Server, error) {
	if store == nil {
		return nil, errors.New("snapshot store is required")
	}
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.Authenticator == nil {
		config.Authenticator = adapters.NewNoOpAuthenticator()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = server.ShutdownTimeout
	}
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}

	gin.SetMode(config.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ErrorHandlingMiddleware(config.Logger))

	// Middleware order: request ID → audit → rate limit → security headers → CORS → logging → size limit
	if config.EnableRequestID {
		router.Use(middleware.RequestIDMiddleware())
	}
	if config.AuditLogger != nil {
		router.Use(audit.AuditMiddleware(config.AuditLogger))
	}
	if config.EnableRateLimit {
		router.Use(middleware.RateLimitMiddleware(config.RateLimitConfig, config.Logger))
	}
	if config.EnableSecurityHeaders {
		router.Use(middleware.SecurityHeadersMiddleware(config.SecurityHeadersConfig))
	}
	if config.EnableCORS {
		router.Use(CORSMiddleware())
	}
	if config.EnableLogging {
		router.Use(LoggingMiddleware(config.Logger))
	}
	if config.MaxRequestSize > 0 {
		router.Use(RequestSizeLimitMiddleware(config.MaxRequestSize))
	}

	handler := NewHandler(store, runner, config.Logger)
	var metricsHandler http.Handler
	if config.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})
	}
	SetupRoutes(router, handler, AuthenticationMiddleware(config.Authenticator, config.Logger), metricsHandler)

	addr := config.Addr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handler:    handler,
		config:     config,
	}, nil
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.config.Logger.Info(context.Background(), "Starting REST API server",
		adapters.Field{Key: "address", Value: s.httpServer.Addr},
	)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l until the server is shut down.
func (s *Server) Serve(l net.Listener) error {
	s.config.Logger.Info(context.Background(), "Starting REST API server",
		adapters.Field{Key: "address", Value: l.Addr().String()},
	)
	return s.httpServer.Serve(l)
}

// Run serves until ctx is done, then shuts down gracefully. A clean
// shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Logger.Info(ctx, "Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router (useful for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the HTTP handler
func (s *Server) Handler() *Handler {
	return s.handler
}

// Address returns the server address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
