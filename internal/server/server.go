// Package server exposes the analysis core over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/nca-cli/internal/metrics"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/summary"
)

// Config configures the HTTP API.
type Config struct {
	Addr         string
	BodyLimitMB  int
	Analysis     pk.Options
	DefaultStats []summary.Statistic
	// MaxGenerateRows caps /api/v1/generate; 0 uses synth.DefaultMaxRows.
	MaxGenerateRows int
	// Registry serves /metrics; a fresh registry is created when nil.
	Registry *prometheus.Registry
}

// Server wraps an echo instance serving the API.
type Server struct {
	echo *echo.Echo
	cfg  Config
	log  zerolog.Logger
}

// New builds the server and registers its routes.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 10
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if err := metrics.Register(cfg.Registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(Recovery(logger))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.BodyLimitMB)))

	s := &Server{echo: e, cfg: cfg, log: logger}
	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	s.RegisterRoutes(e.Group("/api/v1"))
	return s, nil
}

// RegisterRoutes mounts the analysis endpoints on g.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/summary", s.handleSummary)
	g.POST("/profiles", s.handleProfiles)
	g.POST("/nca", s.handleNCA)
	g.POST("/generate", s.handleGenerate)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("starting server")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
