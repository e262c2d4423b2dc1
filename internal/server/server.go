package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/server/handler"
	"github.com/alanyoungcy/hourlyarb/internal/server/middleware"
	"github.com/alanyoungcy/hourlyarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Monitor is optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Assets  *handler.AssetHandler
	Arb     *handler.ArbHandler
	Monitor *handler.MonitorHandler
}

// Server is the HTTP + WebSocket API of hourlyarb.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in the middleware chain.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	rt := &router{mux: http.NewServeMux()}

	// Health check (no auth required).
	rt.handle("GET", "/api/health", handlers.Health.HealthCheck)
	rt.handle("GET", "/api/status", handlers.Status.GetStatus)

	// Asset endpoints.
	rt.handle("GET", "/api/assets", handlers.Assets.List)
	rt.handle("GET", "/api/assets/{symbol}/windows", handlers.Assets.Windows)

	// Arbitrage endpoints.
	rt.handle("GET", "/api/arbitrage", handlers.Arb.Get)
	rt.handle("POST", "/api/arbitrage/custom", handlers.Arb.Custom)
	rt.handle("GET", "/api/arbitrage/recent", handlers.Arb.ListRecent)

	if handlers.Monitor != nil {
		rt.handle("POST", "/api/monitor/trigger", handlers.Monitor.Trigger)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		rt.handle("GET", "/ws/arbitrage", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = rt.mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// CORS runs first so preflight requests never hit auth.
	h = middleware.CORS(cfg.CORSOrigins, rt.methods)(h)

	return h
}

// router registers routes and remembers their methods for CORS.
type router struct {
	mux     *http.ServeMux
	methods []string
}

func (rt *router) handle(method, path string, h http.HandlerFunc) {
	rt.mux.HandleFunc(method+" "+path, h)
	rt.methods = append(rt.methods, method)
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
