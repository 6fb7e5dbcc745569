package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
)

// Report summarizes one evaluation pass over the ledger.
type Report struct {
	Evaluated int // policies in purchased state that were examined
	Paid      int
	NoPayout  int
	NoData    int // no observation matched; policy left untouched
	Errors    int
}

// RunBatch evaluates every purchased policy against a set of historical
// observations. Matching is by departure city (case-insensitive) and UTC
// calendar day. Policies without a matching observation are left untouched.
// A failure on one policy never aborts the rest of the batch.
func (e *Evaluator) RunBatch(ctx context.Context, observations []domain.Observation) (Report, error) {
	start := time.Now()
	var report Report

	policies, err := e.store.Policies()
	if err != nil {
		return report, err
	}

	for i := range policies {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		p := &policies[i]
		if p.Resolved() {
			e.metrics.EvaluatorSkips.WithLabelValues("resolved").Inc()
			continue
		}
		report.Evaluated++

		obs, ok := domain.MatchObservation(p, observations)
		if !ok {
			e.logger.Info("no weather data for policy",
				"holder", p.Holder,
				"city", p.DepartureCity,
				"flight_date", p.FlightDate.Format(time.DateOnly),
			)
			e.metrics.EvaluatorSkips.WithLabelValues("no_data").Inc()
			report.NoData++
			continue
		}

		e.settle(ctx, p, obs.Condition, &report)
	}

	e.metrics.EvaluatorRuns.Inc()
	e.metrics.EvaluatorRunDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// RunLive evaluates every purchased policy against current conditions fetched
// from the live weather source. Missing data leaves a policy unresolved for a
// later pass; a fetch failure for one city never aborts evaluation of the
// remaining policies.
func (e *Evaluator) RunLive(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	if e.weather == nil {
		return report, errors.New("live weather feed disabled")
	}

	policies, err := e.store.Policies()
	if err != nil {
		return report, err
	}

	for i := range policies {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		p := &policies[i]
		if p.Resolved() {
			e.metrics.EvaluatorSkips.WithLabelValues("resolved").Inc()
			continue
		}
		report.Evaluated++

		obs, err := e.fetchWithRetry(ctx, p.DepartureCity)
		if err != nil {
			if errors.Is(err, domain.ErrWeatherDataUnavailable) {
				e.logger.Info("no live weather data", "city", p.DepartureCity, "holder", p.Holder)
				e.metrics.EvaluatorSkips.WithLabelValues("no_data").Inc()
				report.NoData++
			} else {
				e.logger.Warn("weather fetch failed, skipping policy",
					"error", err, "city", p.DepartureCity, "holder", p.Holder)
				e.metrics.EvaluatorSkips.WithLabelValues("error").Inc()
				report.Errors++
			}
			continue
		}

		// The live pass only settles qualifying conditions; a calm day is not
		// a final answer about the flight, so the policy stays open.
		if !e.classifier.Qualifies(obs.Condition) {
			e.logger.Info("condition does not qualify",
				"city", p.DepartureCity, "condition", obs.Condition, "holder", p.Holder)
			continue
		}

		e.settle(ctx, p, obs.Condition, &report)
	}

	e.metrics.EvaluatorRuns.Inc()
	e.metrics.EvaluatorRunDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// Run executes RunLive on a fixed interval until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration) error {
	e.logger.Info("claim evaluator started", "interval", interval)
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("claim evaluator stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if _, err := e.RunLive(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("evaluation pass failed", "error", err)
			}
		}
	}
}

// settle verifies the condition against the policy and pays when eligible.
func (e *Evaluator) settle(ctx context.Context, p *domain.Policy, condition string, report *Report) {
	eligible, err := e.Verify(ctx, p.Holder, condition)
	if err != nil {
		e.logger.Warn("verification failed", "error", err, "holder", p.Holder)
		report.Errors++
		return
	}
	if !eligible {
		report.NoPayout++
		return
	}
	if _, err := e.PayIndemnity(ctx, p.Holder); err != nil {
		e.logger.Warn("payout failed", "error", err, "holder", p.Holder)
		report.Errors++
		return
	}
	report.Paid++
}

// fetchWithRetry attempts a live weather lookup up to three times with a
// capped doubling backoff. Missing data is definitive and is not retried.
func (e *Evaluator) fetchWithRetry(ctx context.Context, city string) (domain.Observation, error) {
	const attempts = 3
	backoff := 200 * time.Millisecond
	maxBackoff := 2 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		obs, err := e.weather.CurrentConditions(ctx, city)
		if err == nil {
			return obs, nil
		}
		if errors.Is(err, domain.ErrWeatherDataUnavailable) {
			return domain.Observation{}, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return domain.Observation{}, ctx.Err()
		case <-e.clock.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return domain.Observation{}, lastErr
}
