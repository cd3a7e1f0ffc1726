// Package http exposes the progression engine as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/alem-hub/campus-progression/internal/application/command"
	"github.com/alem-hub/campus-progression/internal/application/query"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
	"github.com/alem-hub/campus-progression/internal/interface/http/handlers"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// EnableMetrics - expose Prometheus metrics at /metrics.
	EnableMetrics bool

	// RateLimitRPS - requests per second per client (0 = disabled).
	RateLimitRPS   float64
	RateLimitBurst int

	// Version is reported in response meta and health output.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		MaxBodyBytes:   64 << 10,
		AllowedOrigins: []string{"*"},
		EnableMetrics:  true,
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		Version:        "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (write side)
	XPEngine   *command.XPEngine
	Presence   *command.PresenceManager
	Appearance *command.UpdateAppearanceHandler

	// Queries (read side)
	GetAvatar        *query.GetAvatarHandler
	ListAchievements *query.ListAchievementsHandler
	Leaderboard      *query.GetLeaderboardHandler
	ListLocations    *query.ListLocationsHandler

	HealthChecker handlers.HealthChecker
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger

	rateLimiter *handlers.RateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	stopBg    context.CancelFunc
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.Named("http")

	if config.RateLimitRPS > 0 {
		s.rateLimiter = handlers.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Avatar
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/avatar/{userId}/xp", s.handleAwardXP)
	s.router.HandleFunc("GET /api/v1/avatar/{userId}", s.handleGetAvatar)
	s.router.HandleFunc("PUT /api/v1/avatar/{userId}/appearance", s.handleUpdateAppearance)

	// ─────────────────────────────────────────────────────────────────────────
	// Achievements & Leaderboard
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/achievements", s.handleListAchievements)
	s.router.HandleFunc("GET /api/v1/leaderboard", s.handleGetLeaderboard)
	s.router.HandleFunc("GET /api/v1/leaderboard/rank", s.handleGetRank)

	// ─────────────────────────────────────────────────────────────────────────
	// Campus
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/campus/locations", s.handleListLocations)
	s.router.HandleFunc("POST /api/v1/campus/locations/{id}/join", s.handleJoinLocation)
	s.router.HandleFunc("POST /api/v1/campus/locations/{id}/leave", s.handleLeaveLocation)
	s.router.HandleFunc("POST /api/v1/campus/heartbeat", s.handleHeartbeat)

	if s.config.EnableMetrics && s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router. Observation sits right above the mux
// so that r.Pattern is filled in by the time the request is logged.
func (s *Server) buildMiddlewareChain(router http.Handler) http.Handler {
	var corsMW handlers.MiddlewareFunc
	if len(s.config.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", handlers.RequestIDHeader},
			ExposedHeaders: []string{handlers.RequestIDHeader, "Retry-After"},
			MaxAge:         86400,
		})
		corsMW = c.Handler
	}

	var limitMW handlers.MiddlewareFunc
	if s.rateLimiter != nil {
		limitMW = s.rateLimiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
		})
	}

	var sizeMW handlers.MiddlewareFunc
	if s.config.MaxBodyBytes > 0 {
		sizeMW = handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes)
	}

	return handlers.Chain(
		handlers.RequestIDMiddleware,
		s.recoveryMiddleware,
		corsMW,
		limitMW,
		handlers.SecurityHeadersMiddleware,
		sizeMW,
		s.observeMiddleware,
	)(router)
}

// observeMiddleware logs every request and records latency per route pattern.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := handlers.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, rec.Status, duration)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("route", route),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.Status),
			logger.Latency(duration),
			logger.String("ip", handlers.ClientIP(r)),
			logger.String("request_id", handlers.RequestID(r.Context())),
		}
		if rec.Status >= http.StatusInternalServerError {
			s.logger.Warn("http request", fields...)
			return
		}
		s.logger.Debug("http request", fields...)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error("panic recovered",
					logger.Any("error", p),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", handlers.RequestID(r.Context())),
				)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()

	bgCtx, cancel := context.WithCancel(context.Background())
	s.stopBg = cancel
	s.mu.Unlock()

	if s.rateLimiter != nil {
		go s.rateLimiter.Run(bgCtx, time.Minute)
	}

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.stopBg != nil {
		s.stopBg()
	}
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the standard response envelope.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ResponseMeta carries listing metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int64     `json:"total_count,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

func (s *Server) meta() *ResponseMeta {
	return &ResponseMeta{Timestamp: time.Now().UTC(), Version: s.config.Version}
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	writeJSON(w, status, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: handlers.RequestID(r.Context()),
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: handlers.RequestID(r.Context()),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
