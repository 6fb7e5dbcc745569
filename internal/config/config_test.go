package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flight-insurance-service/internal/config"
	"github.com/couchcryptid/flight-insurance-service/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/insurance.db", cfg.DBPath)
	assert.Equal(t, domain.Terms{Premium: 10_000, Indemnity: 50_000}, cfg.Terms())
	assert.Equal(t, []string{"hail", "flood", "rain", "snow", "thunderstorm"}, cfg.QualifyingConditions)
	assert.False(t, cfg.OpenWeatherEnabled)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("PREMIUM_MICROS", "20000")
	t.Setenv("INDEMNITY_MICROS", "100000")
	t.Setenv("QUALIFYING_CONDITIONS", "hail,tornado")
	t.Setenv("EVAL_INTERVAL", "1m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, domain.Terms{Premium: 20_000, Indemnity: 100_000}, cfg.Terms())
	assert.Equal(t, []string{"hail", "tornado"}, cfg.QualifyingConditions)
	assert.Equal(t, time.Minute, cfg.EvalInterval)
}

func TestLoad_OpenWeatherImpliedByKey(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.OpenWeatherEnabled)
}

func TestLoad_OpenWeatherExplicitlyDisabled(t *testing.T) {
	// Any strconv.ParseBool false spelling disables the feed despite the key.
	for _, v := range []string{"false", "FALSE", "0"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("INSURER_TOKEN", "secret")
			t.Setenv("OPENWEATHER_API_KEY", "ow-key")
			t.Setenv("OPENWEATHER_ENABLED", v)

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.False(t, cfg.OpenWeatherEnabled)
		})
	}
}

func TestLoad_OpenWeatherEnabledSpellings(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("INSURER_TOKEN", "secret")
			t.Setenv("OPENWEATHER_API_KEY", "ow-key")
			t.Setenv("OPENWEATHER_ENABLED", v)

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.True(t, cfg.OpenWeatherEnabled)
		})
	}
}

func TestLoad_BadFeatureFlag(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("OPENWEATHER_API_KEY", "ow-key")
	t.Setenv("OPENWEATHER_ENABLED", "yes")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_OpenWeatherEnabledWithoutKey(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("OPENWEATHER_ENABLED", "true")

	_, err := config.Load()
	assert.ErrorContains(t, err, "OPENWEATHER_API_KEY")
}

func TestLoad_KafkaImpliedByBrokers(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.KafkaBrokers)
	assert.Equal(t, "policy-settlements", cfg.KafkaSettlementTopic)
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	t.Setenv("INSURER_TOKEN", "secret")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_ENABLED", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := map[string]struct {
		key, value string
		want       string
	}{
		"missing token":   {"INSURER_TOKEN", "", "INSURER_TOKEN"},
		"zero premium":    {"PREMIUM_MICROS", "0", "PREMIUM_MICROS"},
		"negative payout": {"INDEMNITY_MICROS", "-1", "INDEMNITY_MICROS"},
		"bad timeout":     {"SHUTDOWN_TIMEOUT", "0s", "SHUTDOWN_TIMEOUT"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if tc.key != "INSURER_TOKEN" {
				t.Setenv("INSURER_TOKEN", "secret")
			}
			t.Setenv(tc.key, tc.value)

			_, err := config.Load()
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
