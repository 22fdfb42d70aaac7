// Package price aggregates token quotes from several independent providers
// and evaluates price target calls against the aggregate.
package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"oracle/internal/metrics"
)

// DefaultProviderTimeout bounds a single provider query
const DefaultProviderTimeout = 5 * time.Second

// ErrNoPriceData is returned when every provider failed for a token
var ErrNoPriceData = errors.New("no price data available")

// Provider is a single source of USD token prices
type Provider interface {
	Name() string
	Price(ctx context.Context, token string) (float64, error)
}

// Quote is the aggregate of the providers that answered
type Quote struct {
	Median  float64
	Sources []string
	Prices  []float64
}

// Aggregator queries every provider concurrently and reduces the answers to a median
type Aggregator struct {
	providers []Provider
	timeout   time.Duration
}

func NewAggregator(timeout time.Duration, providers ...Provider) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Aggregator{providers: providers, timeout: timeout}
}

// Quote returns the median price of token across every provider that
// answered in time with a positive, finite price. Failing providers are
// skipped, never retried.
func (a *Aggregator) Quote(ctx context.Context, token string) (Quote, error) {
	var (
		mu    sync.Mutex
		quote Quote
	)

	// Provider failures never cancel the group, so a plain errgroup is enough
	var g errgroup.Group
	for _, p := range a.providers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			price, err := p.Price(pctx, token)
			if err != nil {
				metrics.ProviderErrors.WithLabelValues(p.Name()).Inc()
				slog.Warn("price provider failed", "provider", p.Name(), "token", token, "error", err)
				return nil
			}
			if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				metrics.ProviderErrors.WithLabelValues(p.Name()).Inc()
				slog.Warn("price provider returned unusable quote", "provider", p.Name(), "token", token, "price", price)
				return nil
			}

			mu.Lock()
			quote.Sources = append(quote.Sources, p.Name())
			quote.Prices = append(quote.Prices, price)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(quote.Prices) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", token, ErrNoPriceData)
	}
	quote.Median = Median(quote.Prices)
	return quote, nil
}

// Median returns the middle value of prices, or the mean of the two middle
// values for an even count. It returns 0 for an empty slice and does not
// modify its argument.
func Median(prices []float64) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, prices)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
