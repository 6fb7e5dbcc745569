// Package http exposes the insurance API and operational endpoints. Handlers
// are pass-through wrappers over the ledger and evaluator; no business rules
// live here.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/evaluator"
	"github.com/couchcryptid/flight-insurance-service/internal/ledger"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the policy API plus health, readiness, and metrics routes.
type Server struct {
	httpServer   *http.Server
	ledger       *ledger.Ledger
	evaluator    *evaluator.Evaluator
	insurerToken string
	logger       *slog.Logger
}

// NewServer wires all routes. evaluator may be nil when the live weather feed
// is disabled; the claim endpoint then reports the feed unavailable.
func NewServer(addr string, led *ledger.Ledger, ev *evaluator.Evaluator, ready ReadinessChecker, insurerToken string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ledger:       led,
		evaluator:    ev,
		insurerToken: insurerToken,
		logger:       logger,
	}

	mux.HandleFunc("POST /buy", s.handleBuy)
	mux.HandleFunc("POST /claim", s.handleClaim)
	mux.HandleFunc("GET /available", s.handleAvailable)
	mux.HandleFunc("GET /policy", s.handleViewPolicy)
	mux.HandleFunc("GET /policies", s.insurerOnly(s.handleViewAllPolicies))
	mux.HandleFunc("POST /withdraw", s.insurerOnly(s.handleWithdraw))
	mux.HandleFunc("GET /balances", s.insurerOnly(s.handleBalances))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// insurerOnly rejects requests without the insurer bearer token before the
// wrapped handler reads any state.
func (s *Server) insurerOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.insurerToken {
			s.writeError(w, domain.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

// writeError maps domain errors to HTTP statuses and emits {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrIncorrectPremium):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNoPolicyFound),
		errors.Is(err, domain.ErrPolicyNotPurchased):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicatePolicy),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrNoSurplus):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotEligible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWeatherDataUnavailable),
		errors.Is(err, domain.ErrExternalService):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrInsufficientEscrow):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
