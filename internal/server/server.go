// Package server provides the HTTP API for entscheid.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/storage"
	"github.com/hyperjump/entscheid/internal/tools"
)

// Server is the HTTP server for the entscheid API.
type Server struct {
	tools     *tools.Service
	decisions storage.DecisionStore
	cache     storage.Cache
	queryLog  storage.QueryLog
	index     keyword.Index
	sources   []string
	diskUsage func() (storage.DiskUsage, error)
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithIndex reports the full-text index size in /api/v1/status.
func WithIndex(idx keyword.Index) Option {
	return func(s *Server) { s.index = idx }
}

// WithSources lists the configured source names in /api/v1/status.
func WithSources(names []string) Option {
	return func(s *Server) { s.sources = names }
}

// WithDiskUsage reports the storage footprint in /api/v1/status.
func WithDiskUsage(fn func() (storage.DiskUsage, error)) Option {
	return func(s *Server) { s.diskUsage = fn }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	svc *tools.Service,
	decisions storage.DecisionStore,
	cache storage.Cache,
	queryLog storage.QueryLog,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		tools:     svc,
		decisions: decisions,
		cache:     cache,
		queryLog:  queryLog,
		config:    cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleCallTool)
		r.Post("/search", s.handleSearch)
		r.Get("/decisions/*", s.handleDecision)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/cleanup", s.handleCacheCleanup)
		r.Delete("/cache", s.handleCacheClear)
		r.Get("/stats/queries", s.handleQueryStats)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
