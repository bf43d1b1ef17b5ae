// Package server exposes the capture service over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"snapcam/internal/registry"
	"snapcam/internal/service"
	"snapcam/pkg/models"
)

// Backend is what the HTTP handlers need from the capture service.
type Backend interface {
	Capture(ctx context.Context, params service.CaptureParams) (models.CaptureResult, error)
	CaptureAll(ctx context.Context) (*models.AggregateReport, error)
	Registry() *registry.Registry
}

// Server is the HTTP API.
type Server struct {
	backend    Backend
	engine     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger
}

// New builds the server and its routes. gatherer may be nil, in which case
// /metrics is not served.
func New(addr string, backend Backend, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	engine := gin.New()
	s := &Server{
		backend: backend,
		engine:  engine,
		logger:  logger.With().Str("component", "http").Logger(),
	}
	engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes(gatherer)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/cameras", s.handleCameras)
	api.GET("/cameras/:name/snapshot", s.handleSnapshot)
	api.GET("/snapshots", s.handleSnapshots)

	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
