package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const hourlyTimeLayout = "2006-01-02T15:04"

// BackoffConfig controls retry behaviour for provider calls.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// OpenMeteo is a Client backed by the Open-Meteo geocoding and archive
// APIs. Calls go through a circuit breaker with exponential-backoff retries.
type OpenMeteo struct {
	client     *http.Client
	geocodeURL string
	archiveURL string
	backoff    BackoffConfig
	circuit    *gobreaker.CircuitBreaker
}

// NewOpenMeteo creates an OpenMeteo client. Empty URLs fall back to the
// public endpoints.
func NewOpenMeteo(client *http.Client, geocodeURL, archiveURL string) *OpenMeteo {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if geocodeURL == "" {
		geocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if archiveURL == "" {
		archiveURL = "https://archive-api.open-meteo.com/v1/archive"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteo{
		client:     client,
		geocodeURL: geocodeURL,
		archiveURL: archiveURL,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

func (p *OpenMeteo) Name() string { return "openmeteo" }

// ResolveCoordinates looks up a place name and returns its coordinates.
func (p *OpenMeteo) ResolveCoordinates(ctx context.Context, name string) (float64, float64, error) {
	values := url.Values{}
	values.Set("name", name)
	values.Set("count", "1")

	resp, err := p.get(ctx, fmt.Sprintf("%s?%s", p.geocodeURL, values.Encode()))
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, err
	}
	if len(payload.Results) == 0 {
		return 0, 0, ErrNotFound
	}
	return payload.Results[0].Latitude, payload.Results[0].Longitude, nil
}

// FetchHistorical returns hourly temperatures for [start, end] at the given
// coordinates, normalized to UTC.
func (p *OpenMeteo) FetchHistorical(ctx context.Context, lat, lon float64, start, end time.Time) ([]Reading, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lon))
	values.Set("start_date", start.UTC().Format("2006-01-02"))
	values.Set("end_date", end.UTC().Format("2006-01-02"))
	values.Set("hourly", "temperature_2m")
	values.Set("timezone", "UTC")

	resp, err := p.get(ctx, fmt.Sprintf("%s?%s", p.archiveURL, values.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly struct {
			Time        []string  `json:"time"`
			Temperature []float64 `json:"temperature_2m"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Hourly.Time) != len(payload.Hourly.Temperature) {
		return nil, fmt.Errorf("mismatched hourly arrays in response")
	}

	var readings []Reading
	for i, raw := range payload.Hourly.Time {
		ts, err := time.ParseInLocation(hourlyTimeLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad hourly timestamp %q: %w", raw, err)
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		readings = append(readings, Reading{Timestamp: ts, TempC: payload.Hourly.Temperature[i]})
	}
	return readings, nil
}

// get executes one GET with retries, exponential backoff and the circuit
// breaker.
func (p *OpenMeteo) get(ctx context.Context, rawURL string) (*http.Response, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}

		result, err := p.circuit.Execute(func() (interface{}, error) {
			resp, execErr := p.client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			return resp, nil
		})

		if err == nil {
			return result.(*http.Response), nil
		}

		// An open circuit fails the call immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= p.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := p.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if p.backoff.MaxInterval > 0 && delay > p.backoff.MaxInterval {
			delay = p.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
