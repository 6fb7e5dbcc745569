// Command insurance runs the flight weather insurance service: the policy
// API, the escrow ledger, and the periodic live claim evaluator.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/flight-insurance-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flight-insurance-service/internal/adapter/kafka"
	"github.com/couchcryptid/flight-insurance-service/internal/adapter/openweather"
	"github.com/couchcryptid/flight-insurance-service/internal/config"
	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/evaluator"
	"github.com/couchcryptid/flight-insurance-service/internal/ledger"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
	boltstore "github.com/couchcryptid/flight-insurance-service/internal/storage/bolt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	store, err := boltstore.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}

	led := ledger.New(store, cfg.Terms(), clock, logger, metrics)
	classifier := domain.NewClassifier(cfg.QualifyingConditions)

	// Live weather feed (feature-flagged via OPENWEATHER_ENABLED / API key).
	var weather evaluator.WeatherSource
	if cfg.OpenWeatherEnabled {
		client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherTimeout, logger, metrics)
		weather = openweather.NewCachedSource(client, cfg.OpenWeatherCacheSize, cfg.OpenWeatherCacheTTL, clock, metrics)
		logger.Info("live weather feed enabled",
			"cache_size", cfg.OpenWeatherCacheSize,
			"cache_ttl", cfg.OpenWeatherCacheTTL,
			"timeout", cfg.OpenWeatherTimeout,
		)
	} else {
		logger.Info("live weather feed disabled")
	}

	// Settlement publishing (feature-flagged via KAFKA_ENABLED / brokers).
	var publisher evaluator.SettlementPublisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSettlementTopic, logger)
		publisher = kafkaPub
		logger.Info("settlement publishing enabled", "topic", cfg.KafkaSettlementTopic)
	} else {
		logger.Info("settlement publishing disabled")
	}

	eval := evaluator.New(store, classifier, cfg.Terms().Indemnity, weather, publisher, clock, logger, metrics)

	var claimEval *evaluator.Evaluator
	if cfg.OpenWeatherEnabled {
		claimEval = eval
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, led, claimEval, store, cfg.InsurerToken, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if cfg.OpenWeatherEnabled {
		go func() {
			if err := eval.Run(ctx, cfg.EvalInterval); err != nil {
				logger.Error("evaluator error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
