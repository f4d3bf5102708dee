// Package webapi is the inbound HTTP surface of the generation engine:
// batch generation, stats, and health endpoints behind bearer-token auth.
package webapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"genforge/imagegen"
	"genforge/logging"
	"genforge/metrics"
	"genforge/orchestrator"
	"genforge/pool"
	"genforge/shutdown"
)

// GenerationRunner runs one generation request end to end.
// *orchestrator.Orchestrator is the production implementation.
type GenerationRunner interface {
	Run(ctx context.Context, req orchestrator.Request, sink imagegen.ProgressSink) (orchestrator.GenerationRecord, error)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host to bind to (default: localhost).
	Host string

	// Port to listen on (default: 8080).
	Port int

	// TokenHash is the bcrypt hash of the API token. Empty disables auth.
	TokenHash string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns sensible defaults. Write timeout is generous
// because a generate call spans the whole batch.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port <= 0 {
		c.Port = defaults.Port
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
}

// Server wires the HTTP surface over the engine.
type Server struct {
	config ServerConfig
	logger *logging.Logger

	runner  GenerationRunner
	pool    *pool.AccountPool
	metrics *metrics.Store
	manager *shutdown.Manager
	sink    imagegen.ProgressSink

	httpServer *http.Server
}

// SetProgressSink installs a sink that receives progress for every batch
// started through the API. Must be called before Start.
func (s *Server) SetProgressSink(sink imagegen.ProgressSink) {
	s.sink = sink
}

// NewServer creates a Server. pool and runner are required; metrics and
// manager may be nil (stats omit batch history, generate calls go
// untracked).
func NewServer(config ServerConfig, runner GenerationRunner, accountPool *pool.AccountPool, store *metrics.Store, manager *shutdown.Manager, logger *logging.Logger) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("webapi: generation runner is required")
	}
	if accountPool == nil {
		return nil, fmt.Errorf("webapi: account pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("webapi: logger is required")
	}
	config.applyDefaults()

	s := &Server{
		config:  config,
		logger:  logger.Named("webapi"),
		runner:  runner,
		pool:    accountPool,
		metrics: store,
		manager: manager,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", s.requireAuth(s.handleGenerate))
	mux.HandleFunc("/api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("/api/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.logRequests(mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens and serves until Shutdown. Blocks; returns nil after a
// clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webapi: serve: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// logRequests is the access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
