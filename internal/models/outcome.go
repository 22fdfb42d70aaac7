package models

import "fmt"

// Outcome is the resolution an oracle attests to
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeCallerWins
	OutcomeCallerLoses
	outcomeSentinel
)

func (o Outcome) Valid() bool {
	return o > OutcomeUnknown && o < outcomeSentinel
}

// Flag is the byte that represents o inside a signed resolution message
func (o Outcome) Flag() byte {
	if o == OutcomeCallerWins {
		return 1
	}
	return 0
}

func (o Outcome) String() string {
	switch o {
	case OutcomeCallerWins:
		return "CallerWins"
	case OutcomeCallerLoses:
		return "CallerLoses"
	default:
		return "Unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot encode outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CallerWins":
		*o = OutcomeCallerWins
	case "CallerLoses":
		*o = OutcomeCallerLoses
	default:
		return fmt.Errorf("unknown outcome %q", string(text))
	}
	return nil
}
