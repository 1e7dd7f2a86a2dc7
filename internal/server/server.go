// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package server exposes the plugin runtime to portal pages over HTTP:
// the normalized plugin listing, slot rendering through the containment
// shell, retry, and the backend proxy that keeps plugin credentials
// server-side.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/veranda-dev/veranda/internal/observability"
	"github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/plugin/capability"
	"github.com/veranda-dev/veranda/internal/shell"
	"github.com/veranda-dev/veranda/internal/theme"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ProxyAuthToken, when set, is attached server-side to proxied plugin
	// backend requests. Plugins never see it.
	ProxyAuthToken string
}

// Lister is the registry operation the listing and slot endpoints need.
type Lister interface {
	List(ctx context.Context) ([]plugin.Metadata, error)
}

// slot is one plugin's live runtime: a host, its containment shell, and
// the utility sink collecting toast/navigation effects for the next
// response.
type slot struct {
	host  *plugin.Host
	shell *shell.Shell
	utils *slotUtils
}

// Server wires the runtime behind a chi router.
type Server struct {
	router   chi.Router
	cfg      Config
	logger   *slog.Logger
	registry Lister
	resolver plugin.SourceResolver
	loader   plugin.BundleLoader
	themes   *theme.Store
	clients  plugin.ClientFactory
	metrics  *observability.Metrics
	enforcer *capability.Enforcer

	mu    sync.Mutex
	slots map[string]*slot
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClientFactory sets how per-plugin API callers are built.
func WithClientFactory(f plugin.ClientFactory) Option {
	return func(s *Server) { s.clients = f }
}

// WithMetrics records portal request metrics into the given collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEnforcer keeps capability grants in sync with registry records as
// slots are driven.
func WithEnforcer(e *capability.Enforcer) Option {
	return func(s *Server) { s.enforcer = e }
}

// New creates a Server with chi router, CORS, and the plugin routes.
func New(cfg Config, registry Lister, resolver plugin.SourceResolver, loader plugin.BundleLoader, themes *theme.Store, opts ...Option) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: registry,
		resolver: resolver,
		loader:   loader,
		themes:   themes,
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/api/plugins", s.handleListPlugins)
	r.Get("/api/plugins/{id}/view", s.handlePluginView)
	r.Post("/api/plugins/{id}/retry", s.handlePluginRetry)
	r.HandleFunc("/plugins/{id}/proxy", s.handleProxy)

	s.router = r
	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}

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

	s.logger.Info("portal server listening", "addr", ln.Addr().String())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	s.closeSlots()
	return <-errCh
}

// closeSlots tears down every live plugin host.
func (s *Server) closeSlots() {
	s.mu.Lock()
	slots := s.slots
	s.slots = make(map[string]*slot)
	s.mu.Unlock()

	for id, sl := range slots {
		sl.host.Close()
		if s.enforcer != nil {
			s.enforcer.Revoke(id)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
