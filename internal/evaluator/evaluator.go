// Package evaluator implements the claim evaluator: it correlates weather
// observations with purchased policies, records verification outcomes, and
// disburses indemnities from escrow.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
	boltstore "github.com/couchcryptid/flight-insurance-service/internal/storage/bolt"
)

// WeatherSource provides current conditions for a city. Implementations
// return domain.ErrWeatherDataUnavailable when the source has no observation
// and wrap domain.ErrExternalService on transport failures.
type WeatherSource interface {
	CurrentConditions(ctx context.Context, city string) (domain.Observation, error)
}

// SettlementPublisher receives an event for every verification outcome.
type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, ev SettlementEvent) error
}

// SettlementEvent records the outcome of a claim evaluation for downstream
// consumers.
type SettlementEvent struct {
	PolicyID   string       `json:"policy_id"`
	Holder     string       `json:"holder"`
	Flight     string       `json:"flight"`
	City       string       `json:"city"`
	Condition  string       `json:"condition"`
	Outcome    string       `json:"outcome"` // "paid" or "no_payout"
	Amount     domain.Money `json:"amount,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// ClaimResult summarizes a live claim: the observed condition and whether an
// indemnity was disbursed.
type ClaimResult struct {
	Condition string       `json:"condition"`
	Eligible  bool         `json:"eligible"`
	Paid      bool         `json:"paid"`
	Amount    domain.Money `json:"amount,omitempty"`
}

// Evaluator decides payout eligibility and executes the resulting transfers.
// All mutations run through single store transactions, so an indemnity can
// never leave escrow without the matching status transition or vice versa.
type Evaluator struct {
	store      *boltstore.Store
	classifier domain.Classifier
	indemnity  domain.Money
	weather    WeatherSource       // nil when the live feed is disabled
	publisher  SettlementPublisher // nil when publishing is disabled
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates an Evaluator. weather and publisher may be nil to disable the
// live feed and settlement publishing respectively.
func New(store *boltstore.Store, classifier domain.Classifier, indemnity domain.Money,
	weather WeatherSource, publisher SettlementPublisher,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		store:      store,
		classifier: classifier,
		indemnity:  indemnity,
		weather:    weather,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Verify records a weather observation against the holder's purchased policy
// and classifies it. A qualifying condition leaves the policy purchased and
// eligible for payout; a non-qualifying one resolves it to verified_no_payout
// so it is excluded from future payout attempts and from escrow reservations.
func (e *Evaluator) Verify(ctx context.Context, holder, condition string) (bool, error) {
	condition = domain.NormalizeCondition(condition)
	eligible := e.classifier.Qualifies(condition)

	var policy *domain.Policy
	err := e.store.Update(func(t *boltstore.Tx) error {
		p, err := t.Policy(holder)
		if err != nil {
			if errors.Is(err, domain.ErrNoPolicyFound) {
				return domain.ErrPolicyNotPurchased
			}
			return err
		}
		if p.Status != domain.StatusPurchased {
			return domain.ErrPolicyNotPurchased
		}

		p.VerifiedCondition = condition
		p.Eligible = eligible
		if !eligible {
			now := e.clock.Now().UTC()
			p.Status = domain.StatusVerifiedNoPayout
			p.ResolvedAt = &now
		}
		policy = p
		return t.PutPolicy(p)
	})
	if err != nil {
		return false, err
	}

	outcome := "eligible"
	if !eligible {
		outcome = "no_payout"
		e.publish(ctx, policy, "no_payout", 0)
	}
	e.metrics.ClaimsVerified.WithLabelValues(outcome).Inc()
	e.logger.Info("weather verified",
		"holder", holder,
		"condition", condition,
		"eligible", eligible,
	)
	return eligible, nil
}

// PayIndemnity transfers the fixed indemnity from escrow to the holder and
// marks the policy paid, in one transaction. A policy whose verification did
// not qualify (including verified_no_payout) fails with ErrNotEligible; only
// a policy that has already paid out fails with ErrAlreadyResolved.
func (e *Evaluator) PayIndemnity(ctx context.Context, holder string) (domain.Money, error) {
	var policy *domain.Policy
	err := e.store.Update(func(t *boltstore.Tx) error {
		p, err := t.Policy(holder)
		if err != nil {
			return err
		}
		if p.VerifiedCondition == "" || !p.Eligible {
			return domain.ErrNotEligible
		}
		if p.Status == domain.StatusPaid {
			return domain.ErrAlreadyResolved
		}
		if t.Balance(boltstore.EscrowAccount) < e.indemnity {
			return domain.ErrInsufficientEscrow
		}

		if err := t.AddBalance(boltstore.EscrowAccount, -e.indemnity); err != nil {
			return err
		}
		if err := t.AddBalance(boltstore.HolderAccount(holder), e.indemnity); err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		p.Status = domain.StatusPaid
		p.ResolvedAt = &now
		policy = p
		if err := t.PutPolicy(p); err != nil {
			return err
		}
		e.metrics.EscrowBalance.Set(float64(t.Balance(boltstore.EscrowAccount)))
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.metrics.IndemnitiesPaid.Inc()
	e.publish(ctx, policy, "paid", e.indemnity)
	e.logger.Info("indemnity paid",
		"holder", holder,
		"amount", e.indemnity.String(),
		"condition", policy.VerifiedCondition,
	)
	return e.indemnity, nil
}

// ProcessLiveClaim fetches current conditions for a city and, when the
// condition qualifies, verifies and pays the holder's policy. A non-qualifying
// condition is reported without touching the policy, matching the claim
// endpoint's original behavior of leaving non-extreme weather open for later
// re-checks.
func (e *Evaluator) ProcessLiveClaim(ctx context.Context, holder, city string) (*ClaimResult, error) {
	if e.weather == nil {
		return nil, fmt.Errorf("%w: live weather feed disabled", domain.ErrWeatherDataUnavailable)
	}

	obs, err := e.weather.CurrentConditions(ctx, city)
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{Condition: obs.Condition}
	if !e.classifier.Qualifies(obs.Condition) {
		return result, nil
	}
	result.Eligible = true

	if _, err := e.Verify(ctx, holder, obs.Condition); err != nil {
		return nil, err
	}
	amount, err := e.PayIndemnity(ctx, holder)
	if err != nil {
		return nil, err
	}
	result.Paid = true
	result.Amount = amount
	return result, nil
}

func (e *Evaluator) publish(ctx context.Context, p *domain.Policy, outcome string, amount domain.Money) {
	if e.publisher == nil || p == nil {
		return
	}
	ev := SettlementEvent{
		PolicyID:   p.ID,
		Holder:     p.Holder,
		Flight:     p.FlightNumber,
		City:       p.DepartureCity,
		Condition:  p.VerifiedCondition,
		Outcome:    outcome,
		Amount:     amount,
		OccurredAt: e.clock.Now().UTC(),
	}
	if err := e.publisher.PublishSettlement(ctx, ev); err != nil {
		// Publishing is observability for downstream consumers, not part of
		// the settlement transaction; the ledger is already consistent.
		e.logger.Warn("publish settlement failed", "error", err, "policy_id", p.ID)
		return
	}
	e.metrics.SettlementsPublished.Inc()
}
