// Package remote fetches campaign performance rows from an HTTP API.
// Every call goes through a rate limiter and a circuit breaker so a
// struggling upstream degrades into fast typed failures instead of
// piling up blocked requests.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/adpulse/adpulse/internal/domain"
)

// SourceConfig configures the remote row source.
type SourceConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

func (c SourceConfig) withDefaults() SourceConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 4
	}
	if c.Burst <= 0 {
		c.Burst = 8
	}
	return c
}

// Source is the HTTP-backed row source.
type Source struct {
	cfg     SourceConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewSource builds a source against the given API base URL.
func NewSource(cfg SourceConfig) *Source {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        "remote-rows",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Remote source breaker state changed")
		},
	}
	return &Source{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// rowsResponse is the wire shape of the rows endpoint.
type rowsResponse struct {
	Rows []domain.Row `json:"rows"`
}

// FetchRows retrieves the performance rows for a dataset. The dataset id is
// passed through as a query parameter; an empty id fetches the default
// export.
func (s *Source) FetchRows(ctx context.Context, datasetID string) ([]domain.Row, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, datasetID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Row), nil
}

func (s *Source) fetch(ctx context.Context, datasetID string) ([]domain.Row, error) {
	url := s.cfg.BaseURL + "/v1/rows"
	if datasetID != "" {
		url += "?dataset=" + datasetID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rows request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rows request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rows request returned %d: %s", resp.StatusCode, string(body))
	}

	var payload rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rows response: %w", err)
	}
	log.Debug().Int("rows", len(payload.Rows)).Str("dataset", datasetID).Msg("Fetched remote rows")
	return payload.Rows, nil
}
