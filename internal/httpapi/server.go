// Package httpapi serves the read-only ops surface: health, regime,
// latest results, run lookups, and metrics. Local-only by default.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/store"
)

// Config holds server configuration.
type Config struct {
	Host           string        `yaml:"host" default:"127.0.0.1"`                       // Default: 127.0.0.1
	Port           int           `yaml:"port" default:"8090" validate:"gte=1,lte=65535"` // Default: 8090
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"10s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" default:"60s"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`
}

// DefaultConfig binds local-only on 8090, overridable via HTTP_PORT.
func DefaultConfig() Config {
	port := 8090
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	return Config{
		Host:           "127.0.0.1",
		Port:           port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// RegimeSource serves the most recent classification to the /regime route.
type RegimeSource interface {
	LastClassification() (regime.Classification, bool)
}

// Deps are the read-side dependencies the server exposes. Runs and Metrics
// may be nil when those subsystems are disabled.
type Deps struct {
	Artifacts *artifact.Writer
	Regime    RegimeSource
	Runs      store.RunRepo
	Metrics   http.Handler
}

// Server is the read-only ops HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers
	config   Config
	log      zerolog.Logger
}

// NewServer builds the router and verifies the port is available.
func NewServer(cfg Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	s := &Server{
		router:   mux.NewRouter(),
		handlers: newHandlers(deps),
		config:   cfg,
		log:      log.With().Str("component", "httpapi").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	if s.handlers.metrics != nil {
		s.router.Handle("/metrics", s.handlers.metrics).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/regime", s.handlers.Regime).Methods("GET")
	api.HandleFunc("/results/latest", s.handlers.ResultsLatest).Methods("GET")
	api.HandleFunc("/results/{runID}", s.handlers.ResultsByID).Methods("GET")
	api.HandleFunc("/runs", s.handlers.Runs).Methods("GET")

	s.router.NotFoundHandler = jsonContentTypeMiddleware(http.HandlerFunc(s.handlers.NotFound))
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown or listener failure.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("ops server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("ops server shutting down")
	return s.server.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.log.Info().
			Str("request_id", requestIDFrom(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := s.config.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows localhost origins only; the server is an ops
// surface, not a public API.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
