// Command evaluate runs the offline batch claim verifier: it loads a
// historical weather observation file, evaluates every purchased policy in
// the ledger against it, and prints a per-policy report.
//
// Usage:
//
//	go run ./cmd/evaluate \
//	  -db data/insurance.db \
//	  -weather data/weather.txt \
//	  -conditions hail,flood \
//	  -indemnity 50000
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/evaluator"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
	boltstore "github.com/couchcryptid/flight-insurance-service/internal/storage/bolt"
	"github.com/couchcryptid/flight-insurance-service/internal/weatherfile"
)

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() int {
	dbPath := flag.String("db", "", "path to the policy ledger database")
	weatherPath := flag.String("weather", "", "path to the historical weather observation file")
	conditions := flag.String("conditions", strings.Join(domain.DefaultQualifyingConditions, ","),
		"comma-separated qualifying conditions")
	indemnity := flag.Int64("indemnity", 50_000, "indemnity amount in micro-units")
	verbose := flag.Bool("v", false, "log evaluator activity")
	flag.Parse()

	if *dbPath == "" || *weatherPath == "" {
		flag.Usage()
		return 1
	}

	observations, err := weatherfile.ParseFile(*weatherPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load weather file: %v\n", err)
		return 1
	}
	fmt.Printf("Loaded %d weather observations from %s\n", len(observations), *weatherPath)

	store, err := boltstore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open ledger: %v\n", err)
		return 1
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	classifier := domain.NewClassifier(strings.Split(*conditions, ","))
	eval := evaluator.New(store, classifier, domain.Money(*indemnity),
		nil, nil, clockwork.NewRealClock(), logger, observability.NewUnregisteredMetrics())

	before, err := store.Policies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read policies: %v\n", err)
		return 1
	}
	fmt.Printf("Found %d policies\n\n", len(before))

	report, err := eval.RunBatch(context.Background(), observations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: evaluation: %v\n", err)
		return 1
	}

	after, err := store.Policies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read policies: %v\n", err)
		return 1
	}
	printOutcomes(before, after)

	fmt.Printf("\nEvaluated %d purchased policies: %d paid, %d no payout, %d without data, %d errors\n",
		report.Evaluated, report.Paid, report.NoPayout, report.NoData, report.Errors)
	if report.Errors > 0 {
		return 1
	}
	return 0
}

func printOutcomes(before, after []domain.Policy) {
	prior := make(map[string]domain.Status, len(before))
	for i := range before {
		prior[before[i].ID] = before[i].Status
	}

	for i := range after {
		p := &after[i]
		outcome := "unchanged"
		if prior[p.ID] != p.Status {
			outcome = fmt.Sprintf("%s -> %s (%s)", prior[p.ID], p.Status, p.VerifiedCondition)
		}
		fmt.Printf("  %-20s %-8s %-12s %s  %s\n",
			p.PassengerName, p.FlightNumber, p.DepartureCity,
			p.FlightDate.Format(time.DateOnly), outcome)
	}
}
