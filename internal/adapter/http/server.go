// Package http exposes dashboard sessions and metric reads over a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fixora/dashboard/internal/dashboard"
	"github.com/fixora/dashboard/internal/logger"
)

// Server represents the HTTP server
type Server struct {
	addr           string
	sessionHandler *SessionHandler
	metricsHandler *MetricsHandler
	server         *http.Server
	log            logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	AllowedOrigins   []string
	AllowCredentials bool
	RateLimit        float64
	RateBurst        int
	StreamHeartbeat  time.Duration
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, manager *dashboard.Manager, service MetricsReader, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	// Create handlers
	sessionHandler := NewSessionHandler(manager, NewStreamer(config.StreamHeartbeat, log))
	metricsHandler := NewMetricsHandler(service)

	// Create router
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	if config.RateLimit > 0 {
		api.Use(newIPRateLimiter(config.RateLimit, config.RateBurst).middleware(log))
	}
	sessionHandler.RegisterRoutes(api)
	metricsHandler.RegisterRoutes(api)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		success(w, http.StatusOK, "ok", map[string]interface{}{"sessions": manager.Len()})
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// preflight requests are answered before route method matching
	var handler http.Handler = router
	handler = corsMiddleware(config.AllowedOrigins, config.AllowCredentials)(handler)
	handler = correlationMiddleware(handler)
	handler = loggingMiddleware(log)(handler)
	handler = recoveryMiddleware(log)(handler)

	return &Server{
		addr:           ":" + config.Port,
		sessionHandler: sessionHandler,
		metricsHandler: metricsHandler,
		log:            log,
		server: &http.Server{
			Addr:         ":" + config.Port,
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
