package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// insurance service.
type Metrics struct {
	PoliciesPurchased prometheus.Counter
	PurchasesRejected *prometheus.CounterVec // labels: reason={duplicate,premium}
	ClaimsVerified    *prometheus.CounterVec // labels: outcome={eligible,no_payout}
	IndemnitiesPaid   prometheus.Counter
	EscrowBalance     prometheus.Gauge // micro-units

	// Evaluator batch/live run metrics.
	EvaluatorRuns        prometheus.Counter
	EvaluatorRunDuration prometheus.Histogram
	EvaluatorSkips       *prometheus.CounterVec // labels: reason={resolved,no_data,error}

	// Live weather source metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,no_data,error}
	WeatherAPIDuration prometheus.Histogram
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}

	SettlementsPublished prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PoliciesPurchased,
		m.PurchasesRejected,
		m.ClaimsVerified,
		m.IndemnitiesPaid,
		m.EscrowBalance,
		m.EvaluatorRuns,
		m.EvaluatorRunDuration,
		m.EvaluatorSkips,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.WeatherCache,
		m.SettlementsPublished,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics without registering them, for
// short-lived commands that never expose a scrape endpoint.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates unregistered Metrics, avoiding "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewUnregisteredMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PoliciesPurchased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "policies_purchased_total",
			Help:      "Total policies successfully purchased.",
		}),
		PurchasesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "purchases_rejected_total",
			Help:      "Rejected purchase attempts by reason.",
		}, []string{"reason"}),
		ClaimsVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "claims_verified_total",
			Help:      "Weather verifications recorded by outcome.",
		}, []string{"outcome"}),
		IndemnitiesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "indemnities_paid_total",
			Help:      "Total indemnity payouts disbursed.",
		}),
		EscrowBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flight_insurance",
			Name:      "escrow_balance_micros",
			Help:      "Current escrow pool balance in micro-units.",
		}),
		EvaluatorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "evaluator_runs_total",
			Help:      "Completed claim evaluation passes.",
		}),
		EvaluatorRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flight_insurance",
			Name:      "evaluator_run_duration_seconds",
			Help:      "Duration of a complete claim evaluation pass.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EvaluatorSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "evaluator_skips_total",
			Help:      "Policies skipped during evaluation by reason.",
		}, []string{"reason"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "weather_requests_total",
			Help:      "Live weather lookups by outcome.",
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flight_insurance",
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		SettlementsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flight_insurance",
			Name:      "settlements_published_total",
			Help:      "Settlement events published to the sink topic.",
		}),
	}
}
