package models

import "time"

// Category is the closed set of call kinds the oracle knows how to resolve
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPriceTarget
	CategoryRugPrediction
	categorySentinel
)

// Valid reports whether c is one of the resolvable categories
func (c Category) Valid() bool {
	return c > CategoryUnknown && c < categorySentinel
}

func (c Category) String() string {
	switch c {
	case CategoryPriceTarget:
		return "PriceTarget"
	case CategoryRugPrediction:
		return "RugPrediction"
	default:
		return "Unknown"
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the record store's names. Unrecognized names decode to
// CategoryUnknown so a single odd row does not fail the whole pending feed.
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PriceTarget", "TokenPrice":
		*c = CategoryPriceTarget
	case "RugPrediction":
		*c = CategoryRugPrediction
	default:
		*c = CategoryUnknown
	}
	return nil
}

// Status mirrors the ledger-side call status
type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusResolvedCallerWins
	StatusResolvedCallerLoses
	StatusAutoRefunded
	statusSentinel
)

func (s Status) Valid() bool {
	return s > StatusUnknown && s < statusSentinel
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusResolvedCallerWins:
		return "ResolvedCallerWins"
	case StatusResolvedCallerLoses:
		return "ResolvedCallerLoses"
	case StatusAutoRefunded:
		return "AutoRefunded"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText writes. Unrecognized names decode
// to StatusUnknown, which Pending never selects.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Active":
		*s = StatusActive
	case "ResolvedCallerWins":
		*s = StatusResolvedCallerWins
	case "ResolvedCallerLoses":
		*s = StatusResolvedCallerLoses
	case "AutoRefunded":
		*s = StatusAutoRefunded
	default:
		*s = StatusUnknown
	}
	return nil
}

// Call is the read model of a staked prediction awaiting resolution.
// The core never mutates it; only the ledger transitions Status.
type Call struct {
	// Identification
	ID       string `json:"id"`
	LedgerID string `json:"onchain_id"` // Base58 call account key
	Caller   string `json:"caller_address"`

	// Prediction
	Category      Category `json:"category"`
	TokenAddress  string   `json:"token_address,omitempty"`
	TargetPrice   *float64 `json:"target_price,omitempty"`   // PriceTarget only
	CreationPrice *float64 `json:"creation_price,omitempty"` // PriceTarget only

	// Timing (Unix seconds)
	Deadline  int64 `json:"deadline"`
	CreatedAt int64 `json:"created_at"`

	Status          Status `json:"status"`
	ChallengerCount int    `json:"challengers_count"`
}

// DeadlinePassed reports whether the call is past its deadline at now
func (c *Call) DeadlinePassed(now time.Time) bool {
	return now.Unix() >= c.Deadline
}

// Pending reports whether the call is Active and past its deadline
func (c *Call) Pending(now time.Time) bool {
	return c.Status == StatusActive && c.DeadlinePassed(now)
}
