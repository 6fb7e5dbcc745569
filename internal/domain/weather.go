package domain

import (
	"strings"
	"time"
)

// Observation is a single weather report for a city. Observations are
// ephemeral inputs to claim evaluation; they are never persisted.
type Observation struct {
	City      string    `json:"city"`
	Timestamp time.Time `json:"timestamp"`
	Condition string    `json:"condition"`
}

// DefaultQualifyingConditions is the payout-triggering set used unless
// QUALIFYING_CONDITIONS overrides it.
var DefaultQualifyingConditions = []string{"hail", "flood", "rain", "snow", "thunderstorm"}

// NormalizeCondition lowercases and trims a condition string so classification
// is insensitive to provider casing.
func NormalizeCondition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCity lowercases and trims a city name for matching.
func NormalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Classifier decides indemnity eligibility for a weather condition.
// It is a pure decision over already-fetched data; retrieval lives elsewhere.
type Classifier struct {
	qualifying map[string]bool
}

// NewClassifier builds a Classifier from a qualifying-condition list.
// Conditions are normalized, so configuration casing does not matter.
func NewClassifier(conditions []string) Classifier {
	q := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		if n := NormalizeCondition(c); n != "" {
			q[n] = true
		}
	}
	return Classifier{qualifying: q}
}

// Qualifies reports whether the condition triggers indemnity eligibility.
func (c Classifier) Qualifies(condition string) bool {
	return c.qualifying[NormalizeCondition(condition)]
}

// Conditions returns the qualifying set in no particular order.
func (c Classifier) Conditions() []string {
	out := make([]string, 0, len(c.qualifying))
	for cond := range c.qualifying {
		out = append(out, cond)
	}
	return out
}

// SameUTCDay reports whether two instants fall on the same UTC calendar day.
// Weather reports carry day-level resolution, so claim matching deliberately
// ignores the time of day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// MatchObservation finds the first observation whose city matches the policy's
// departure city (case-insensitive) on the same UTC day as the flight date.
func MatchObservation(p *Policy, observations []Observation) (Observation, bool) {
	city := NormalizeCity(p.DepartureCity)
	for _, o := range observations {
		if NormalizeCity(o.City) == city && SameUTCDay(o.Timestamp, p.FlightDate) {
			return o, true
		}
	}
	return Observation{}, false
}
