// Package server provides the HTTP API for fmrank.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/hyperjump/fmrank/internal/config"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/metrics"
	"github.com/hyperjump/fmrank/internal/predict"
	"github.com/hyperjump/fmrank/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP server for the fmrank API.
// Engines are not safe for concurrent use, so every request on a handle holds that handle's lock.
type Server struct {
	registry *lifecycle.Registry
	pipeline *predict.Pipeline
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	started  time.Time

	serverMu sync.Mutex
	server   *http.Server

	defaultMu     sync.RWMutex
	defaultHandle lifecycle.Handle

	locks sync.Map // lifecycle.Handle -> *sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithStorage enables the prediction log endpoints and status counts.
func WithStorage(st storage.Storage) Option {
	return func(s *Server) { s.storage = st }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDefaultHandle sets the handle served by POST /api/v1/predict.
func WithDefaultHandle(h lifecycle.Handle) Option {
	return func(s *Server) { s.defaultHandle = h }
}

// NewServer creates a server with the given dependencies.
func NewServer(registry *lifecycle.Registry, pipeline *predict.Pipeline, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		pipeline: pipeline,
		config:   cfg,
		logger:   zap.NewNop(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		if limit := s.config.Server.RateLimit; limit > 0 {
			r.Use(httprate.LimitByIP(limit, time.Minute))
		}
		r.Post("/predict", s.handlePredictDefault)
		r.Get("/engines", s.handleListEngines)
		r.Post("/engines", s.handleInitEngine)
		r.Delete("/engines/{handle}", s.handleDisposeEngine)
		r.Post("/engines/{handle}/predict", s.handlePredictHandle)
		r.Get("/predictions", s.handleListPredictions)
		r.Get("/predictions/{id}", s.handleGetPrediction)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Lock()
	s.server = hs
	s.serverMu.Unlock()
	s.logger.Info("Starting server", zap.String("addr", addr))
	return hs.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.serverMu.Lock()
	hs := s.server
	s.serverMu.Unlock()
	if hs != nil {
		return hs.Shutdown(ctx)
	}
	return nil
}

// DefaultHandle returns the handle behind POST /api/v1/predict.
func (s *Server) DefaultHandle() lifecycle.Handle {
	s.defaultMu.RLock()
	defer s.defaultMu.RUnlock()
	return s.defaultHandle
}

// ReloadDefault initializes a new default engine from opts, swaps it in and disposes the old one.
// On failure the current default keeps serving.
func (s *Server) ReloadDefault(opts lifecycle.InitOptions) error {
	h, err := s.registry.Init(opts)
	metrics.RecordReload(err)
	if err != nil {
		s.logger.Error("model reload failed", zap.String("model", opts.ModelPath), zap.Error(err))
		return err
	}

	s.defaultMu.Lock()
	old := s.defaultHandle
	s.defaultHandle = h
	s.defaultMu.Unlock()

	if old != "" {
		if err := s.dispose(old); err != nil {
			s.logger.Warn("dispose of previous default engine failed", zap.String("handle", string(old)), zap.Error(err))
		}
	}
	s.logger.Info("model reloaded", zap.String("model", opts.ModelPath), zap.String("handle", string(h)))
	return nil
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.started)
}

// lockFor returns the mutex serializing use of h.
func (s *Server) lockFor(h lifecycle.Handle) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(h, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// dispose waits for in-flight requests on h, then disposes it.
func (s *Server) dispose(h lifecycle.Handle) error {
	mu := s.lockFor(h)
	mu.Lock()
	defer mu.Unlock()
	err := s.registry.Dispose(h)
	s.locks.Delete(h)
	return err
}
