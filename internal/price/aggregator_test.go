package price

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	price float64
	err   error
	delay time.Duration
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Price(ctx context.Context, _ string) (float64, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.price, s.err
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{7}, 7},
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"duplicates", []float64{5, 5, 1}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Median(tt.prices))
		})
	}
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	prices := []float64{3, 1, 2}
	Median(prices)
	assert.Equal(t, []float64{3, 1, 2}, prices)
}

func TestMedian_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	positive := gen.SliceOf(gen.Float64Range(0.000001, 1e9)).SuchThat(func(v []float64) bool {
		return len(v) > 0
	})

	properties.Property("median lies within min and max", prop.ForAll(
		func(prices []float64) bool {
			m := Median(prices)
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, p := range prices {
				lo = math.Min(lo, p)
				hi = math.Max(hi, p)
			}
			return m >= lo && m <= hi
		},
		positive,
	))

	properties.Property("median is order independent", prop.ForAll(
		func(prices []float64) bool {
			reversed := make([]float64, len(prices))
			for i, p := range prices {
				reversed[len(prices)-1-i] = p
			}
			return Median(prices) == Median(reversed)
		},
		positive,
	))

	properties.TestingRun(t)
}

func TestAggregator_Quote(t *testing.T) {
	agg := NewAggregator(time.Second,
		stubProvider{name: "a", price: 1},
		stubProvider{name: "b", price: 3},
		stubProvider{name: "c", price: 2},
	)

	q, err := agg.Quote(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.Median)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, q.Sources)
	assert.Len(t, q.Prices, 3)
}

func TestAggregator_DropsFailingProviders(t *testing.T) {
	agg := NewAggregator(50*time.Millisecond,
		stubProvider{name: "ok", price: 10},
		stubProvider{name: "err", err: errors.New("boom")},
		stubProvider{name: "zero", price: 0},
		stubProvider{name: "nan", price: math.NaN()},
		stubProvider{name: "slow", price: 99, delay: time.Second},
	)

	start := time.Now()
	q, err := agg.Quote(context.Background(), "token")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 10.0, q.Median)
	assert.Equal(t, []string{"ok"}, q.Sources)
}

func TestAggregator_NoData(t *testing.T) {
	agg := NewAggregator(time.Second,
		stubProvider{name: "a", err: errors.New("down")},
		stubProvider{name: "b", price: -1},
	)

	_, err := agg.Quote(context.Background(), "token")
	assert.ErrorIs(t, err, ErrNoPriceData)
}
