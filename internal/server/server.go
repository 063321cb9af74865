// Package server exposes the pipeline over HTTP. It is a thin adapter:
// decoding, status codes and middleware live here, all decisions are made
// by the pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/config"
	"github.com/raaihank/report-sentinel/internal/logger"
	"github.com/raaihank/report-sentinel/internal/pipeline"
	"github.com/raaihank/report-sentinel/internal/web"
	"github.com/raaihank/report-sentinel/internal/websocket"
)

// Version is reported by /info
const Version = "0.1.0"

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	processor *pipeline.Processor
	wsHub     *websocket.Hub
	limiter   *RateLimiter
	router    *mux.Router
	server    *http.Server
	startedAt time.Time
}

// New creates a server. hub may be nil when the live feed is disabled.
func New(cfg *config.Config, processor *pipeline.Processor, hub *websocket.Hub, log *logger.Logger) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		processor: processor,
		wsHub:     hub,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	api.HandleFunc("/guard", s.handleGuard).Methods(http.MethodPost)
	api.HandleFunc("/audit/{requestID}", s.handleAudit).Methods(http.MethodGet)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the rate limiter cleanup and serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting report-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.String("rewrite_provider", s.processor.Provider()),
		zap.String("audit_backend", s.config.Audit.Backend),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.wsHub != nil),
	)

	if s.limiter != nil {
		go s.limiter.StartCleanupRoutine(ctx, 10*time.Minute)
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping report-sentinel server")
	return s.server.Shutdown(ctx)
}
