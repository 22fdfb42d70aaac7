// Package rug decides rug-pull predictions from three independent market signals.
package rug

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"oracle/internal/market"
	"oracle/internal/models"
)

// ErrHistoryUnavailable is returned by a HolderHistory that has no data for a token
var ErrHistoryUnavailable = errors.New("holder history unavailable")

// MarketData returns the trading pairs of a token
type MarketData interface {
	Pairs(ctx context.Context, token string) ([]market.Pair, error)
}

// HolderHistory reports how much the top holders' combined balance shrank
// since a point in time, as a fraction in [0, 1].
type HolderHistory interface {
	TopHolderReduction(ctx context.Context, token string, since int64) (float64, error)
}

// NoHolderHistory is used when no snapshot source is configured
type NoHolderHistory struct{}

func (NoHolderHistory) TopHolderReduction(context.Context, string, int64) (float64, error) {
	return 0, ErrHistoryUnavailable
}

// Config holds the signal thresholds
type Config struct {
	CollapseThreshold      float64       // 12h change in percent, inclusive
	CollapseMinAge         time.Duration // minimum call age before a collapse counts
	ConcentrationThreshold float64       // top holder reduction fraction, exclusive
	LiquidityFloorUSD      float64
	Timeout                time.Duration // per signal
}

func DefaultConfig() Config {
	return Config{
		CollapseThreshold:      -80,
		CollapseMinAge:         12 * time.Hour,
		ConcentrationThreshold: 0.6,
		LiquidityFloorUSD:      1000,
		Timeout:                5 * time.Second,
	}
}

// Report is the evaluator's verdict with the individual signals
type Report struct {
	IsRug            bool
	Confidence       float64
	Reasons          []string
	Collapse         bool
	Concentration    bool
	LiquidityRemoved bool
}

// Result converts the report into a validation result for a RugPrediction call
func (r Report) Result() models.ValidationResult {
	outcome := models.OutcomeCallerLoses
	reason := "fewer than two rug signals"
	if r.IsRug {
		outcome = models.OutcomeCallerWins
		reason = "rug detected"
	}
	if len(r.Reasons) > 0 {
		reason += ": " + strings.Join(r.Reasons, "; ")
	}
	return models.ValidationResult{
		Outcome:    outcome,
		Confidence: r.Confidence,
		Reason:     reason,
		Evidence: map[string]any{
			"price_collapse":    r.Collapse,
			"holder_dump":       r.Concentration,
			"liquidity_removed": r.LiquidityRemoved,
		},
	}
}

type Evaluator struct {
	market  MarketData
	holders HolderHistory
	cfg     Config
}

func NewEvaluator(md MarketData, holders HolderHistory, cfg Config) *Evaluator {
	if holders == nil {
		holders = NoHolderHistory{}
	}
	return &Evaluator{market: md, holders: holders, cfg: cfg}
}

// Evaluate computes the three signals concurrently. A signal whose data
// cannot be read counts as not fired.
func (e *Evaluator) Evaluate(ctx context.Context, call *models.Call, now time.Time) Report {
	// Collapse and liquidity read the same pairs
	pairs := sync.OnceValues(func() ([]market.Pair, error) {
		pctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		return e.market.Pairs(pctx, call.TokenAddress)
	})

	var (
		report  Report
		reasons [3]string
	)

	var g errgroup.Group
	g.Go(func() error {
		report.Collapse, reasons[0] = e.collapse(call, now, pairs)
		return nil
	})
	g.Go(func() error {
		report.Concentration, reasons[1] = e.concentration(ctx, call)
		return nil
	})
	g.Go(func() error {
		report.LiquidityRemoved, reasons[2] = e.liquidityRemoved(call, pairs)
		return nil
	})
	_ = g.Wait()

	count := 0
	for _, fired := range []bool{report.Collapse, report.Concentration, report.LiquidityRemoved} {
		if fired {
			count++
		}
	}
	for _, r := range reasons {
		if r != "" {
			report.Reasons = append(report.Reasons, r)
		}
	}
	report.IsRug = count >= 2
	report.Confidence = Confidence(count)
	return report
}

// Confidence maps a fired signal count to {0, 0.33, 0.66, 1}
func Confidence(count int) float64 {
	return math.Floor(float64(count)*100/3) / 100
}

func (e *Evaluator) collapse(call *models.Call, now time.Time, pairs func() ([]market.Pair, error)) (bool, string) {
	if now.Sub(time.Unix(call.CreatedAt, 0)) < e.cfg.CollapseMinAge {
		return false, ""
	}
	ps, err := pairs()
	if err != nil {
		slog.Warn("rug collapse signal unavailable", "token", call.TokenAddress, "error", err)
		return false, ""
	}
	best, ok := market.MostLiquid(ps)
	if !ok || best.PriceChangeH12 > e.cfg.CollapseThreshold {
		return false, ""
	}
	return true, fmt.Sprintf("price collapsed %.1f%% in 12h", best.PriceChangeH12)
}

func (e *Evaluator) concentration(ctx context.Context, call *models.Call) (bool, string) {
	hctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	reduction, err := e.holders.TopHolderReduction(hctx, call.TokenAddress, call.CreatedAt)
	if err != nil {
		if !errors.Is(err, ErrHistoryUnavailable) {
			slog.Warn("rug holder signal unavailable", "token", call.TokenAddress, "error", err)
		}
		return false, ""
	}
	if reduction <= e.cfg.ConcentrationThreshold {
		return false, ""
	}
	return true, fmt.Sprintf("top holders sold %.0f%%", reduction*100)
}

func (e *Evaluator) liquidityRemoved(call *models.Call, pairs func() ([]market.Pair, error)) (bool, string) {
	ps, err := pairs()
	if err != nil {
		slog.Warn("rug liquidity signal unavailable", "token", call.TokenAddress, "error", err)
		return false, ""
	}
	best, ok := market.MostLiquid(ps)
	if !ok {
		return true, "no trading pairs"
	}
	if best.LiquidityUSD < e.cfg.LiquidityFloorUSD {
		return true, fmt.Sprintf("liquidity $%.0f below $%.0f", best.LiquidityUSD, e.cfg.LiquidityFloorUSD)
	}
	return false, ""
}
