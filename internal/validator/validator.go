// Package validator produces a node's independent opinion on a call.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"oracle/internal/metrics"
	"oracle/internal/models"
	"oracle/internal/price"
	"oracle/internal/rug"
)

const invalidReason = "invalid category or missing data"

// Quoter returns an aggregated price for a token
type Quoter interface {
	Quote(ctx context.Context, token string) (price.Quote, error)
}

// RugEvaluator scores a call for rug signals
type RugEvaluator interface {
	Evaluate(ctx context.Context, call *models.Call, now time.Time) rug.Report
}

type Validator struct {
	prices Quoter
	rugs   RugEvaluator
	now    func() time.Time
}

func New(prices Quoter, rugs RugEvaluator) *Validator {
	return &Validator{prices: prices, rugs: rugs, now: time.Now}
}

// Validate never fails: unresolvable calls, missing market data and
// panics all produce a conservative CallerLoses with zero confidence.
func (v *Validator) Validate(ctx context.Context, call *models.Call) (result models.ValidationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("validation panicked", "call", call.LedgerID, "panic", r)
			result = models.ConservativeResult(fmt.Sprintf("validation error: %v", r))
		}
		metrics.ValidationDuration.WithLabelValues(call.Category.String()).Observe(time.Since(start).Seconds())
	}()

	if call.TokenAddress == "" {
		return models.ConservativeResult(invalidReason)
	}

	switch call.Category {
	case models.CategoryPriceTarget:
		return v.validatePriceTarget(ctx, call)
	case models.CategoryRugPrediction:
		return v.rugs.Evaluate(ctx, call, v.now()).Result()
	default:
		return models.ConservativeResult(invalidReason)
	}
}

func (v *Validator) validatePriceTarget(ctx context.Context, call *models.Call) models.ValidationResult {
	if !hasPrice(call.CreationPrice) || !hasPrice(call.TargetPrice) {
		return models.ConservativeResult(price.MissingPriceReason)
	}

	quote, err := v.prices.Quote(ctx, call.TokenAddress)
	if err != nil {
		slog.Warn("no price data for call", "call", call.LedgerID, "token", call.TokenAddress, "error", err)
		return models.ConservativeResult(fmt.Sprintf("price data unavailable: %v", err))
	}

	result := price.EvaluateTarget(call.CreationPrice, call.TargetPrice, quote.Median)
	if result.Evidence != nil {
		result.Evidence["sources"] = quote.Sources
	}
	return result
}

func hasPrice(p *float64) bool {
	return p != nil && *p > 0
}
