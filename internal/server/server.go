package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kehai/api"
	"github.com/ashita-ai/kehai/internal/arbiter"
	"github.com/ashita-ai/kehai/internal/auth"
	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/ratelimit"
	"github.com/ashita-ai/kehai/internal/schedule"
)

// Server is the kehai HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Reader, Hist, MCPServer, Limiter.
type Config struct {
	Arbiter  *arbiter.Arbiter
	Engine   *schedule.Engine
	Presets  *preset.Set
	Verifier *auth.Verifier
	Logger   *slog.Logger

	Reader    PresenceReader
	Hist      HistoryLister
	MCPServer *mcpserver.MCPServer
	Limiter   *ratelimit.Limiter

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Arbiter: cfg.Arbiter,
		Engine:  cfg.Engine,
		Reader:  cfg.Reader,
		Hist:    cfg.Hist,
		Presets: cfg.Presets,
		Logger:  cfg.Logger,
		Version: cfg.Version,
	})

	mux := http.NewServeMux()

	// Health and the API description (no auth).
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})

	// Backend event webhook (no auth; the backend posts here).
	mux.HandleFunc("POST /onebot/event", h.HandleOneBotEvent)

	// Presence state.
	mux.HandleFunc("GET /v1/status", h.HandleGetStatus)
	mux.HandleFunc("POST /v1/override", h.HandleSetOverride)
	mux.HandleFunc("DELETE /v1/override", h.HandleClearOverride)
	mux.HandleFunc("POST /v1/sync", h.HandleSync)

	// Schedule.
	mux.HandleFunc("GET /v1/schedule", h.HandleGetSchedule)
	mux.HandleFunc("POST /v1/refresh", h.HandleRefresh)

	// Remote presence lookup and audit trail.
	mux.HandleFunc("GET /v1/users/{user_id}/status", h.HandleUserStatus)
	mux.HandleFunc("GET /v1/history", h.HandleHistory)
	mux.HandleFunc("GET /v1/presets", h.HandlePresets)

	// MCP StreamableHTTP transport (same token guard as the admin API).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID -> tracing -> logging -> auth -> rate limit -> recovery.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	if cfg.Limiter != nil {
		handler = rateLimitMiddleware(cfg.Limiter, handler)
	}
	handler = authMiddleware(cfg.Verifier, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
