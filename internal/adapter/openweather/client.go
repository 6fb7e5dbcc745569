// Package openweather implements the live weather source against the
// OpenWeatherMap current-conditions API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/flight-insurance-service/internal/domain"
	"github.com/couchcryptid/flight-insurance-service/internal/observability"
)

// Client implements evaluator.WeatherSource using the OpenWeatherMap API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an OpenWeatherMap client.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		logger:  logger,
		metrics: metrics,
	}
}

// CurrentConditions fetches the current weather for a city. Only the primary
// condition group (weather[0].main) is consumed; it is normalized to
// lowercase. A city the provider does not know, or a response with no weather
// entries, yields domain.ErrWeatherDataUnavailable.
func (c *Client) CurrentConditions(ctx context.Context, city string) (domain.Observation, error) {
	params := url.Values{
		"q":     {city},
		"appid": {c.apiKey},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	start := time.Now()
	obs, err := c.doRequest(ctx, fullURL, city)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	case errors.Is(err, domain.ErrWeatherDataUnavailable):
		c.metrics.WeatherRequests.WithLabelValues("no_data").Inc()
	default:
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
	}
	return obs, err
}

func (c *Client) doRequest(ctx context.Context, fullURL, city string) (domain.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("%w: weather request: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Observation{}, domain.ErrWeatherDataUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Observation{}, fmt.Errorf("%w: status %d: %s", domain.ErrExternalService, resp.StatusCode, body)
	}

	var owm response
	if err := json.NewDecoder(resp.Body).Decode(&owm); err != nil {
		return domain.Observation{}, fmt.Errorf("%w: decode response: %v", domain.ErrExternalService, err)
	}

	if len(owm.Weather) == 0 {
		return domain.Observation{}, domain.ErrWeatherDataUnavailable
	}

	ts := time.Unix(owm.DT, 0).UTC()
	if owm.DT == 0 {
		ts = time.Now().UTC()
	}
	return domain.Observation{
		City:      domain.NormalizeCity(city),
		Timestamp: ts,
		Condition: domain.NormalizeCondition(owm.Weather[0].Main),
	}, nil
}

// OpenWeatherMap API response types. Only the fields we consume.

type response struct {
	Weather []weatherGroup `json:"weather"`
	DT      int64          `json:"dt"`
}

type weatherGroup struct {
	Main string `json:"main"`
}
