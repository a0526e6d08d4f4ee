// Package api serves glog streams over HTTP.
//
// Routes under /api/v1/streams/{proto} write records, flush the cache, take
// archive snapshots, change retention, report statistics and decode archive
// files. /health and /metrics are never protected by the API key.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ssargent/glogstore/pkg/store"
)

// Server holds the API server state
type Server struct {
	streams map[string]Stream
	config  ServerConfig
	metrics *Metrics
	logger  *slog.Logger
}

// NewServer creates a new API server for streams keyed by proto name
func NewServer(streams map[string]Stream, config ServerConfig, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		streams: streams,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Routes builds the router with all middleware and routes configured
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.metrics.InstrumentHandler("GET", "/health", s.handleHealth))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(apiKeyMiddleware(s.config.APIKey, s.metrics))
		}

		r.Route("/streams/{proto}", func(r chi.Router) {
			r.Post("/records", s.metrics.InstrumentHandler("POST", "/api/v1/streams/{proto}/records", s.handleWrite))
			r.Post("/flush", s.metrics.InstrumentHandler("POST", "/api/v1/streams/{proto}/flush", s.handleFlush))
			r.Get("/snapshot", s.metrics.InstrumentHandler("GET", "/api/v1/streams/{proto}/snapshot", s.handleSnapshot))
			r.Put("/expire", s.metrics.InstrumentHandler("PUT", "/api/v1/streams/{proto}/expire", s.handleExpire))
			r.Get("/stats", s.metrics.InstrumentHandler("GET", "/api/v1/streams/{proto}/stats", s.handleStats))
			r.Get("/archives/{name}/records", s.metrics.InstrumentHandler("GET", "/api/v1/streams/{proto}/archives/{name}/records", s.handleRecords))
		})
	})

	return r
}

// updateMetrics refreshes the stream gauges
func (s *Server) updateMetrics() {
	for _, st := range s.streams {
		s.metrics.UpdateStreamStats(st.Stats())
	}
}

// startMetricsUpdater refreshes the stream gauges until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context) {
	interval := s.config.MetricsInterval
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.updateMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateMetrics()
		}
	}
}

// StartServer opens the configured streams in registry and serves them
// until ctx is cancelled. Handles are released on return.
func StartServer(ctx context.Context, registry *store.Registry, config ServerConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	streams := make(map[string]Stream, len(config.Streams))
	var handles []*store.Handle
	defer func() {
		for _, h := range handles {
			if err := h.Close(); err != nil {
				logger.Error("failed to close stream", "proto", h.Config().ProtoName, "error", err)
			}
		}
	}()
	for _, cfg := range config.Streams {
		h, err := registry.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open stream %s: %w", cfg.ProtoName, err)
		}
		handles = append(handles, h)
		streams[cfg.ProtoName] = h
	}

	server := NewServer(streams, config, NewMetrics(), logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.startMetricsUpdater(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Bind, config.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting glog REST API server", "addr", httpServer.Addr, "streams", len(streams))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	logger.Info("shutting down glog REST API server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
