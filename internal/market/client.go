// Package market talks to the public token market data APIs used to
// validate calls.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrTokenNotListed is returned when a provider has no market for the token
var ErrTokenNotListed = errors.New("token not listed")

// ClientConfig configures a market data client. Timeout bounds a single
// request; RatePerSecond and Burst throttle outbound requests.
type ClientConfig struct {
	Endpoint      string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

type httpClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

func newHTTPClient(cfg ClientConfig) (*httpClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is empty, please provide a valid endpoint")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &httpClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
	}, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	url := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", url, err)
	}
	return nil
}
