package evaluator_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/evaluator"
	"github.com/couchcryptid/flight-insurance-service/internal/ledger"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
	boltstore "github.com/couchcryptid/flight-insurance-service/internal/storage/bolt"
)

var testTerms = domain.Terms{Premium: 10_000, Indemnity: 50_000}

var flightDate = time.Date(2023, time.April, 16, 14, 0, 0, 0, time.UTC)

// --- mocks ---

type mockWeather struct {
	conditions map[string]string // lowercased city → condition
	err        error
	calls      int
}

func (m *mockWeather) CurrentConditions(_ context.Context, city string) (domain.Observation, error) {
	m.calls++
	if m.err != nil {
		return domain.Observation{}, m.err
	}
	cond, ok := m.conditions[domain.NormalizeCity(city)]
	if !ok {
		return domain.Observation{}, domain.ErrWeatherDataUnavailable
	}
	return domain.Observation{
		City:      domain.NormalizeCity(city),
		Timestamp: time.Now().UTC(),
		Condition: cond,
	}, nil
}

type mockPublisher struct {
	events []evaluator.SettlementEvent
}

func (m *mockPublisher) PublishSettlement(_ context.Context, ev evaluator.SettlementEvent) error {
	m.events = append(m.events, ev)
	return nil
}

// --- fixture ---

type fixture struct {
	store     *boltstore.Store
	ledger    *ledger.Ledger
	eval      *evaluator.Evaluator
	weather   *mockWeather
	publisher *mockPublisher
}

func newFixture(t *testing.T, qualifying []string) *fixture {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := clockwork.NewRealClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	weather := &mockWeather{conditions: map[string]string{}}
	publisher := &mockPublisher{}

	return &fixture{
		store:  store,
		ledger: ledger.New(store, testTerms, clock, logger, metrics),
		eval: evaluator.New(store, domain.NewClassifier(qualifying), testTerms.Indemnity,
			weather, publisher, clock, logger, metrics),
		weather:   weather,
		publisher: publisher,
	}
}

func (f *fixture) purchase(t *testing.T, holder, city string) {
	t.Helper()
	_, err := f.ledger.Purchase(context.Background(), ledger.PurchaseRequest{
		Holder:        holder,
		PassengerName: "Passenger " + holder,
		FlightNumber:  "AA123",
		FlightDate:    flightDate,
		DepartureCity: city,
		AmountPaid:    testTerms.Premium,
	})
	require.NoError(t, err)
}

func (f *fixture) policy(t *testing.T, holder string) *domain.Policy {
	t.Helper()
	p, err := f.store.PolicyByHolder(holder)
	require.NoError(t, err)
	return p
}

func (f *fixture) escrow(t *testing.T) domain.Money {
	t.Helper()
	var m domain.Money
	require.NoError(t, f.store.View(func(tx *boltstore.Tx) error {
		m = tx.Balance(boltstore.EscrowAccount)
		return nil
	}))
	return m
}

func (f *fixture) holderBalance(t *testing.T, holder string) domain.Money {
	t.Helper()
	var m domain.Money
	require.NoError(t, f.store.View(func(tx *boltstore.Tx) error {
		m = tx.Balance(boltstore.HolderAccount(holder))
		return nil
	}))
	return m
}

// --- verify / pay ---

func TestVerify_QualifyingCondition(t *testing.T) {
	f := newFixture(t, []string{"hail", "flood"})
	f.purchase(t, "alice", "Denver")

	eligible, err := f.eval.Verify(context.Background(), "alice", "Hail")
	require.NoError(t, err)
	assert.True(t, eligible)

	p := f.policy(t, "alice")
	assert.Equal(t, domain.StatusPurchased, p.Status)
	assert.Equal(t, "hail", p.VerifiedCondition)
	assert.True(t, p.Eligible)
	assert.Nil(t, p.ResolvedAt)
}

func TestVerify_NonQualifyingResolves(t *testing.T) {
	f := newFixture(t, []string{"hail", "flood"})
	f.purchase(t, "alice", "Denver")

	eligible, err := f.eval.Verify(context.Background(), "alice", "clear")
	require.NoError(t, err)
	assert.False(t, eligible)

	p := f.policy(t, "alice")
	assert.Equal(t, domain.StatusVerifiedNoPayout, p.Status)
	assert.Equal(t, "clear", p.VerifiedCondition)
	assert.False(t, p.Eligible)
	assert.NotNil(t, p.ResolvedAt)

	// A no-payout resolution publishes a settlement event.
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "no_payout", f.publisher.events[0].Outcome)
}

func TestVerify_NoPolicy(t *testing.T) {
	f := newFixture(t, []string{"hail"})

	_, err := f.eval.Verify(context.Background(), "ghost", "hail")
	assert.ErrorIs(t, err, domain.ErrPolicyNotPurchased)
}

func TestVerify_AlreadyResolved(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")

	_, err := f.eval.Verify(context.Background(), "alice", "clear")
	require.NoError(t, err)

	_, err = f.eval.Verify(context.Background(), "alice", "hail")
	assert.ErrorIs(t, err, domain.ErrPolicyNotPurchased)
}

func TestPayIndemnity(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	// Fund escrow to cover the indemnity on top of alice's premium.
	for _, h := range []string{"alice", "b", "c", "d", "e"} {
		f.purchase(t, h, "Denver")
	}
	escrowBefore := f.escrow(t)

	_, err := f.eval.Verify(context.Background(), "alice", "hail")
	require.NoError(t, err)

	amount, err := f.eval.PayIndemnity(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, testTerms.Indemnity, amount)

	// Escrow decreases by exactly the indemnity, the holder gains the same,
	// and the status flips in the same transaction.
	assert.Equal(t, escrowBefore-testTerms.Indemnity, f.escrow(t))
	assert.Equal(t, testTerms.Indemnity, f.holderBalance(t, "alice"))
	p := f.policy(t, "alice")
	assert.Equal(t, domain.StatusPaid, p.Status)
	assert.NotNil(t, p.ResolvedAt)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "paid", f.publisher.events[0].Outcome)
	assert.Equal(t, testTerms.Indemnity, f.publisher.events[0].Amount)
}

func TestPayIndemnity_SecondCallFails(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	for _, h := range []string{"alice", "b", "c", "d", "e"} {
		f.purchase(t, h, "Denver")
	}

	_, err := f.eval.Verify(context.Background(), "alice", "hail")
	require.NoError(t, err)
	_, err = f.eval.PayIndemnity(context.Background(), "alice")
	require.NoError(t, err)

	escrowAfter := f.escrow(t)
	_, err = f.eval.PayIndemnity(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, escrowAfter, f.escrow(t))
	assert.Equal(t, testTerms.Indemnity, f.holderBalance(t, "alice"))
}

func TestPayIndemnity_NotEligible(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")

	// Unverified policy.
	_, err := f.eval.PayIndemnity(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotEligible)
}

func TestPayIndemnity_NoPayoutPolicyNotEligible(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")

	eligible, err := f.eval.Verify(context.Background(), "alice", "clear")
	require.NoError(t, err)
	require.False(t, eligible)
	require.Equal(t, domain.StatusVerifiedNoPayout, f.policy(t, "alice").Status)

	// A non-qualifying verification is an eligibility failure, not a
	// double-settlement attempt.
	_, err = f.eval.PayIndemnity(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	assert.NotErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, testTerms.Premium, f.escrow(t))
}

func TestPayIndemnity_InsufficientEscrow(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	// One premium (10_000) cannot cover the indemnity (50_000).
	f.purchase(t, "alice", "Denver")

	_, err := f.eval.Verify(context.Background(), "alice", "hail")
	require.NoError(t, err)

	_, err = f.eval.PayIndemnity(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientEscrow)

	// Nothing moved and the policy is still open.
	assert.Equal(t, testTerms.Premium, f.escrow(t))
	assert.Equal(t, domain.Money(0), f.holderBalance(t, "alice"))
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "alice").Status)
}

// --- batch run ---

func TestRunBatch(t *testing.T) {
	f := newFixture(t, []string{"hail", "flood"})
	f.purchase(t, "alice", "Denver")
	f.purchase(t, "bob", "Austin")
	f.purchase(t, "carol", "Miami")
	// Insurer capital on top of the three premiums so the indemnity is covered.
	require.NoError(t, f.store.Update(func(tx *boltstore.Tx) error {
		return tx.AddBalance(boltstore.EscrowAccount, testTerms.Indemnity)
	}))

	observations := []domain.Observation{
		{City: "denver", Timestamp: flightDate.Add(-2 * time.Hour), Condition: "hail"},
		{City: "austin", Timestamp: flightDate, Condition: "clear"},
		// Miami report is from the prior UTC day: must not match.
		{City: "miami", Timestamp: flightDate.Add(-24 * time.Hour), Condition: "hail"},
	}

	report, err := f.eval.RunBatch(context.Background(), observations)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 1, report.Paid)     // alice in Denver
	assert.Equal(t, 1, report.NoPayout) // bob in Austin
	assert.Equal(t, 1, report.NoData)   // carol in Miami
	assert.Equal(t, 0, report.Errors)

	assert.Equal(t, domain.StatusPaid, f.policy(t, "alice").Status)
	assert.Equal(t, domain.StatusVerifiedNoPayout, f.policy(t, "bob").Status)
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "carol").Status)
	assert.Equal(t, testTerms.Indemnity, f.holderBalance(t, "alice"))
}

func TestRunBatch_SkipsResolved(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")
	_, err := f.eval.Verify(context.Background(), "alice", "clear")
	require.NoError(t, err)

	report, err := f.eval.RunBatch(context.Background(), []domain.Observation{
		{City: "denver", Timestamp: flightDate, Condition: "hail"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Equal(t, domain.StatusVerifiedNoPayout, f.policy(t, "alice").Status)
}

// --- live run ---

func TestRunLive(t *testing.T) {
	f := newFixture(t, []string{"hail", "snow"})
	for _, h := range []string{"alice", "b", "c", "d", "e"} {
		f.purchase(t, h, "Denver")
	}
	f.weather.conditions["denver"] = "snow"

	report, err := f.eval.RunLive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Evaluated)
	assert.Equal(t, 1, report.Paid) // escrow (50k) covers exactly one payout
	assert.Equal(t, 4, report.Errors)
	assert.Equal(t, domain.StatusPaid, f.policy(t, "alice").Status)
}

func TestRunLive_NoDataLeavesPolicyOpen(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Nowhere")

	report, err := f.eval.RunLive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.NoData)
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "alice").Status)
}

func TestRunLive_NonQualifyingLeavesPolicyOpen(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")
	f.weather.conditions["denver"] = "clear"

	report, err := f.eval.RunLive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 0, report.Paid)
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "alice").Status)
}

func TestRunLive_SourceFailureContinues(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")
	f.purchase(t, "bob", "Denver")
	f.weather.err = fmt.Errorf("%w: connection refused", domain.ErrExternalService)

	report, err := f.eval.RunLive(context.Background())
	require.NoError(t, err)

	// Both policies hit the failing source; neither aborts the run and
	// neither is resolved.
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "alice").Status)
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "bob").Status)
	// Transient failures are retried before giving up on a policy.
	assert.Equal(t, 6, f.weather.calls)
}

// --- live claim ---

func TestProcessLiveClaim_Paid(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	for _, h := range []string{"alice", "b", "c", "d", "e"} {
		f.purchase(t, h, "Denver")
	}
	f.weather.conditions["denver"] = "hail"

	result, err := f.eval.ProcessLiveClaim(context.Background(), "alice", "Denver")
	require.NoError(t, err)

	assert.Equal(t, "hail", result.Condition)
	assert.True(t, result.Eligible)
	assert.True(t, result.Paid)
	assert.Equal(t, testTerms.Indemnity, result.Amount)
	assert.Equal(t, domain.StatusPaid, f.policy(t, "alice").Status)
}

func TestProcessLiveClaim_NotExtreme(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Denver")
	f.weather.conditions["denver"] = "clear"

	result, err := f.eval.ProcessLiveClaim(context.Background(), "alice", "Denver")
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.False(t, result.Paid)
	// Non-extreme weather leaves the claim open for a later re-check.
	assert.Equal(t, domain.StatusPurchased, f.policy(t, "alice").Status)
}

func TestProcessLiveClaim_NoData(t *testing.T) {
	f := newFixture(t, []string{"hail"})
	f.purchase(t, "alice", "Nowhere")

	_, err := f.eval.ProcessLiveClaim(context.Background(), "alice", "Nowhere")
	assert.ErrorIs(t, err, domain.ErrWeatherDataUnavailable)
}
