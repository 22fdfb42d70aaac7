package price

import (
	"fmt"

	"github.com/shopspring/decimal"

	"oracle/internal/models"
)

var hundred = decimal.NewFromInt(100)

// MissingPriceReason explains a conservative result for a call without usable prices
const MissingPriceReason = "missing creation or target price"

// EvaluateTarget decides a price target call. The caller wins when the
// actual gain since creation is at least the required gain; the boundary
// is inclusive and computed in decimal so equal inputs compare equal.
func EvaluateTarget(creation, target *float64, current float64) models.ValidationResult {
	if creation == nil || target == nil || *creation <= 0 || *target <= 0 {
		return models.ConservativeResult(MissingPriceReason)
	}

	c := decimal.NewFromFloat(*creation)
	required := decimal.NewFromFloat(*target).Sub(c).Div(c).Mul(hundred)
	actual := decimal.NewFromFloat(current).Sub(c).Div(c).Mul(hundred)

	outcome := models.OutcomeCallerLoses
	verb := "below"
	if actual.GreaterThanOrEqual(required) {
		outcome = models.OutcomeCallerWins
		verb = "reached"
	}

	return models.ValidationResult{
		Outcome:    outcome,
		Confidence: 1,
		Reason: fmt.Sprintf("price %s target: actual gain %s%% vs required %s%%",
			verb, actual.StringFixed(2), required.StringFixed(2)),
		Evidence: map[string]any{
			"creation_price": *creation,
			"target_price":   *target,
			"current_price":  current,
			"required_gain":  required.String(),
			"actual_gain":    actual.String(),
		},
	}
}
