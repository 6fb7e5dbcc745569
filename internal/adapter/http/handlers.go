package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/ledger"
)

type buyRequest struct {
	Holder   string `json:"holder"`
	Name     string `json:"name"`
	Flight   string `json:"flight"`
	Date     string `json:"date"` // RFC 3339, "2006-01-02", or unix seconds
	FromCity string `json:"fromCity"`
	ToCity   string `json:"toCity"`
}

type claimRequest struct {
	City      string `json:"city"`
	Passenger string `json:"passenger"` // holder identity
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Holder == "" || req.Flight == "" || req.Date == "" || req.FromCity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "holder, flight, date, and fromCity are required"})
		return
	}

	date, err := parseFlightDate(req.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// The HTTP surface sells at list price; the exact-premium invariant is
	// enforced by the ledger for all callers.
	policy, err := s.ledger.Purchase(r.Context(), ledger.PurchaseRequest{
		Holder:          req.Holder,
		PassengerName:   req.Name,
		FlightNumber:    req.Flight,
		FlightDate:      date,
		DepartureCity:   req.FromCity,
		DestinationCity: req.ToCity,
		AmountPaid:      s.ledger.Terms().Premium,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "Purchased",
		"policy": policy,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.City == "" || req.Passenger == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "city and passenger are required"})
		return
	}
	if s.evaluator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "live weather feed is disabled"})
		return
	}

	result, err := s.evaluator.ProcessLiveClaim(r.Context(), req.Passenger, req.City)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := "Weather not extreme"
	if result.Paid {
		status = "Claim processed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"condition": result.Condition,
		"paid":      result.Paid,
		"amount":    result.Amount,
	})
}

func (s *Server) handleAvailable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"policy": s.ledger.Terms()})
}

func (s *Server) handleViewPolicy(w http.ResponseWriter, r *http.Request) {
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "holder query parameter is required"})
		return
	}

	policy, err := s.ledger.ViewPurchased(r.Context(), holder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleViewAllPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.ledger.ViewAll(r.Context(), domain.RoleInsurer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(policies),
		"policies": policies,
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.ledger.WithdrawProfit(r.Context(), domain.RoleInsurer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "Withdrawn",
		"amount": amount,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Balances(r.Context(), domain.RoleInsurer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseFlightDate accepts RFC 3339, a bare date, or unix seconds.
func parseFlightDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q: want RFC 3339, YYYY-MM-DD, or unix seconds", s)
}
