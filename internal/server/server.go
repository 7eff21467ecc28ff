// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

// Package server exposes the entry and search services over REST.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lorebook-dev/lorebook/internal/metrics"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

// DefaultCORSOrigin is the web frontend's development origin.
const DefaultCORSOrigin = "http://localhost:3000"

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string

	Services *Services
	Metrics  *metrics.Metrics // optional; nil disables /metrics and request metrics
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
}

// New creates a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, lberr.New(lberr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.Services == nil {
		return nil, lberr.New(lberr.CodeServerConfigInvalid, "services are required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("Lorebook API", cfg.Version)
	humaConfig.Info.Description = "Tagged text entries with semantic search"
	// Responses are plain JSON; no $schema links.
	humaConfig.CreateHooks = nil
	api := humachi.New(r, humaConfig)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	srv := &Server{
		router:   r,
		api:      api,
		cfg:      cfg,
		services: cfg.Services,
	}
	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return lberr.Wrapf(err, lberr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil {
			return lberr.Wrap(err, lberr.CodeServerStartFailure, "serving http")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return lberr.Wrap(err, lberr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{DefaultCORSOrigin}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{OutcomeHeader, RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
