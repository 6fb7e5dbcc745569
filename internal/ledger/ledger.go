// Package ledger implements the policy ledger: it accepts purchases, exposes
// policy reads under role checks, and manages the escrow pool.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
	boltstore "github.com/couchcryptid/flight-insurance-service/internal/storage/bolt"
)

// PurchaseRequest carries the inputs of a policy purchase. AmountPaid must
// exactly equal the configured premium.
type PurchaseRequest struct {
	Holder          string
	PassengerName   string
	FlightNumber    string
	FlightDate      time.Time
	DepartureCity   string
	DestinationCity string
	AmountPaid      domain.Money
}

// BalanceReport is an insurer-only snapshot of fund custody.
type BalanceReport struct {
	Escrow  domain.Money            `json:"escrow"`
	Insurer domain.Money            `json:"insurer"`
	Holders map[string]domain.Money `json:"holders"`
}

// Ledger owns all policy and escrow mutation. It is the single aggregate for
// shared state; there is no other path to the store's policy buckets.
type Ledger struct {
	store   *boltstore.Store
	terms   domain.Terms
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Ledger over the given store with fixed product terms.
func New(store *boltstore.Store, terms domain.Terms, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		terms:   terms,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Terms returns the static product terms. Public: no access restriction.
func (l *Ledger) Terms() domain.Terms {
	return l.terms
}

// Purchase creates a policy in the purchased state and credits escrow by the
// premium, atomically. The premium check runs before any state mutation, so a
// rejected purchase leaves ledger and escrow byte-for-byte unchanged.
func (l *Ledger) Purchase(_ context.Context, req PurchaseRequest) (*domain.Policy, error) {
	if req.AmountPaid != l.terms.Premium {
		l.metrics.PurchasesRejected.WithLabelValues("premium").Inc()
		return nil, fmt.Errorf("%w: paid %s, required %s",
			domain.ErrIncorrectPremium, req.AmountPaid, l.terms.Premium)
	}

	p := &domain.Policy{
		ID:              uuid.NewString(),
		Holder:          req.Holder,
		PassengerName:   req.PassengerName,
		FlightNumber:    req.FlightNumber,
		FlightDate:      req.FlightDate.UTC(),
		DepartureCity:   req.DepartureCity,
		DestinationCity: req.DestinationCity,
		PremiumPaid:     req.AmountPaid,
		Status:          domain.StatusPurchased,
		CreatedAt:       l.clock.Now().UTC(),
	}

	err := l.store.Update(func(t *boltstore.Tx) error {
		if err := t.CreatePolicy(p); err != nil {
			return err
		}
		if err := t.AddBalance(boltstore.EscrowAccount, req.AmountPaid); err != nil {
			return err
		}
		l.metrics.EscrowBalance.Set(float64(t.Balance(boltstore.EscrowAccount)))
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePolicy) {
			l.metrics.PurchasesRejected.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}

	l.metrics.PoliciesPurchased.Inc()
	l.logger.Info("policy purchased",
		"policy_id", p.ID,
		"holder", p.Holder,
		"flight", p.FlightNumber,
		"departure_city", p.DepartureCity,
		"premium", p.PremiumPaid.String(),
	)
	return p, nil
}

// ViewPurchased returns the holder's own policy. Self-service lookup: callers
// can only ever see the record keyed by their own identity.
func (l *Ledger) ViewPurchased(_ context.Context, holder string) (*domain.Policy, error) {
	return l.store.PolicyByHolder(holder)
}

// ViewAll returns every policy in creation order. Insurer-only; the role is
// checked before any state is read.
func (l *Ledger) ViewAll(_ context.Context, caller domain.Role) ([]domain.Policy, error) {
	if caller != domain.RoleInsurer {
		return nil, domain.ErrUnauthorized
	}
	return l.store.Policies()
}

// WithdrawProfit moves the escrow surplus to the insurer account. Surplus is
// recomputed from current obligations inside the withdrawal transaction, never
// from a cached value, so funds owed to verified-but-unpaid policies can never
// leave the pool.
func (l *Ledger) WithdrawProfit(_ context.Context, caller domain.Role) (domain.Money, error) {
	if caller != domain.RoleInsurer {
		return 0, domain.ErrUnauthorized
	}

	var surplus domain.Money
	err := l.store.Update(func(t *boltstore.Tx) error {
		policies, err := t.Policies()
		if err != nil {
			return err
		}

		var owed domain.Money
		for i := range policies {
			if outstandingObligation(&policies[i]) {
				owed += l.terms.Indemnity
			}
		}

		escrow := t.Balance(boltstore.EscrowAccount)
		surplus = escrow - owed
		if surplus <= 0 {
			surplus = 0
			return domain.ErrNoSurplus
		}

		if err := t.AddBalance(boltstore.EscrowAccount, -surplus); err != nil {
			return err
		}
		if err := t.AddBalance(boltstore.InsurerAccount, surplus); err != nil {
			return err
		}
		l.metrics.EscrowBalance.Set(float64(t.Balance(boltstore.EscrowAccount)))
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("profit withdrawn", "amount", surplus.String())
	return surplus, nil
}

// Balances returns a snapshot of escrow, insurer, and holder balances.
// Insurer-only.
func (l *Ledger) Balances(_ context.Context, caller domain.Role) (*BalanceReport, error) {
	if caller != domain.RoleInsurer {
		return nil, domain.ErrUnauthorized
	}

	report := &BalanceReport{Holders: map[string]domain.Money{}}
	err := l.store.View(func(t *boltstore.Tx) error {
		all, err := t.Balances()
		if err != nil {
			return err
		}
		for account, balance := range all {
			switch {
			case account == boltstore.EscrowAccount:
				report.Escrow = balance
			case account == boltstore.InsurerAccount:
				report.Insurer = balance
			default:
				report.Holders[strings.TrimPrefix(account, boltstore.HolderAccount(""))] = balance
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// outstandingObligation reports whether the policy reserves an indemnity in
// escrow. Obligations crystallize at verification: an unverified purchased
// policy reserves nothing, a verified-qualifying one reserves the full
// indemnity until it is paid.
func outstandingObligation(p *domain.Policy) bool {
	return p.Status == domain.StatusPurchased && p.Eligible && p.VerifiedCondition != ""
}
