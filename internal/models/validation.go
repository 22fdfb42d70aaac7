package models

// ValidationResult is one node's independent opinion on a call.
// It is produced fresh for every (node, call) pair and never persisted.
type ValidationResult struct {
	Outcome    Outcome        `json:"outcome"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Evidence   map[string]any `json:"evidence,omitempty"`
}

// ConservativeResult is the default verdict when a call cannot be evaluated
func ConservativeResult(reason string) ValidationResult {
	return ValidationResult{
		Outcome:    OutcomeCallerLoses,
		Confidence: 0,
		Reason:     reason,
	}
}
