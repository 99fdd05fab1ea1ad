// Package api provides the HTTP API server for the pricing calculator.
// It serves the cost lookup and typeahead routes used by the calculator page,
// the JSON pricing API and the optional static UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketplace-pricing/db/clickhouse"
	"marketplace-pricing/db/formstate"
	"marketplace-pricing/decision/catalog"
	"marketplace-pricing/decision/marketplace"
)

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	calculator *marketplace.Calculator
	resolver   *catalog.Resolver
	forms      formstate.Store
	schedule   *clickhouse.Schedule
	checks     map[string]func(context.Context) error
	config     *Config
	logger     zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	StaticDir      string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           3000,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 1 << 20, // 1MB
		CORSOrigins:    []string{"*"},
	}
}

// NewServer creates a new API server
func NewServer(calc *marketplace.Calculator, resolver *catalog.Resolver, forms formstate.Store, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if forms == nil {
		forms = formstate.NewMemory()
	}

	return &Server{
		calculator: calc,
		resolver:   resolver,
		forms:      forms,
		checks:     map[string]func(context.Context) error{"form_state": forms.Ping},
		config:     config,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// WithSchedule records the fee schedule the calculator was built from.
func (s *Server) WithSchedule(sch *clickhouse.Schedule) *Server {
	s.schedule = sch
	return s
}

// WithReadinessCheck adds a dependency checked by /ready.
func (s *Server) WithReadinessCheck(name string, check func(context.Context) error) *Server {
	s.checks[name] = check
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Routes used by the calculator page
	r.Get("/preco-custo/{sku}", s.handleCostLookup)
	r.Get("/search", s.handleSearch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/quote", s.handleQuote)
		r.Get("/brackets", s.handleBrackets)
		r.Put("/state/shared", s.handleSharedState)
		r.Get("/state/{marketplace}", s.handleGetState)
		r.Put("/state/{marketplace}", s.handlePutState)
	})

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	return r
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

func (s *Server) listen() error {
	s.logger.Info().Int("port", s.config.Port).Str("static_dir", s.config.StaticDir).Msg("API server starting")
	return s.httpServer.ListenAndServe()
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = s.newHTTPServer()
	return s.listen()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling.
// It returns when ctx is done or on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	// set before the listener goroutine so Shutdown never sees a nil server
	s.httpServer = s.newHTTPServer()

	errChan := make(chan error, 1)
	go func() {
		if err := s.listen(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = 0

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("remote", r.RemoteAddr).
			Str("request_id", RequestID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		// Check if origin is allowed
		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": name + " unavailable",
			})
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// Version is reported by /health.
var Version = "1.0.0"

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
