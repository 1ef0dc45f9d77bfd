package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tokenproof/ticket-gate/internal/auth"
	"github.com/tokenproof/ticket-gate/internal/config"
	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/storage"
	"github.com/tokenproof/ticket-gate/internal/ticket"
	"github.com/tokenproof/ticket-gate/pkg/utils"
)

// HTTPServer exposes the ticket gate over HTTP
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	tickets        *ticket.Service
	auth           *auth.Service
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	tickets *ticket.Service,
	authService *auth.Service,
	metricsManager *metrics.Manager,
) *HTTPServer {
	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		tickets:        tickets,
		auth:           authService,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Sign-in flow, unauthenticated
	api.HandleFunc("/auth/nonce", s.nonceHandler).Methods("GET")
	api.HandleFunc("/auth/signin", s.signinHandler).Methods("POST")

	// Everything below requires a session token
	authed := api.NewRoute().Subrouter()
	authed.Use(s.auth.Middleware(s.writeRejection))

	authed.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	authed.HandleFunc("/events", s.createEventHandler).Methods("POST")
	authed.HandleFunc("/events/{eventId}", s.getEventHandler).Methods("GET")

	authed.HandleFunc("/tickets", s.issueTicketHandler).Methods("POST")
	authed.HandleFunc("/tickets", s.listTicketsHandler).Methods("GET")
	authed.HandleFunc("/tickets/{ticketId}", s.getTicketHandler).Methods("GET")
	authed.HandleFunc("/tickets/{ticketId}/invalidate", s.invalidateTicketHandler).Methods("POST")

	authed.HandleFunc("/verify", s.verifyTicketHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start),
			"remote_ip": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes a generic error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}

// writeRejection renders a typed rejection with its stable code
func (s *HTTPServer) writeRejection(w http.ResponseWriter, r *ticket.Rejection) {
	s.writeJSON(w, rejectionStatus(r.Kind), map[string]interface{}{
		"code":        r.Code,
		"description": r.Description,
		"kind":        r.Kind,
	})
}

// rejectionStatus maps a rejection kind to an HTTP status
func rejectionStatus(kind ticket.RejectionKind) int {
	switch kind {
	case ticket.KindMalformedRequest:
		return http.StatusBadRequest
	case ticket.KindNotFound:
		return http.StatusNotFound
	case ticket.KindUnauthorized:
		return http.StatusUnauthorized
	case ticket.KindConflict:
		return http.StatusConflict
	case ticket.KindIneligibleIdentity:
		return http.StatusForbidden
	case ticket.KindTermExpired:
		return http.StatusBadRequest
	case ticket.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError renders a service error, typed when possible
func (s *HTTPServer) handleServiceError(w http.ResponseWriter, err error) {
	if r, ok := ticket.AsRejection(err); ok {
		s.writeRejection(w, r)
		return
	}
	s.writeError(w, http.StatusInternalServerError, "Internal error", err)
}
