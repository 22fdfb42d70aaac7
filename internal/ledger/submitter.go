// Package ledger submits signed resolutions to the ledger program.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"oracle/internal/consensus"
	"oracle/internal/ledger/retry"
	"oracle/internal/models"
)

var (
	ErrInvalidQuorum     = errors.New("invalid signature quorum")
	ErrChallengeMismatch = errors.New("challenge set does not match call")
)

// Resolution is everything the ledger needs to settle a call
type Resolution struct {
	Call       *models.Call
	Outcome    models.Outcome
	Timestamp  int64
	Signatures []models.OracleSignature
	Challenges []models.Challenge // Canonical order
}

// Ledger submits a resolution and returns the transaction signature
type Ledger interface {
	Resolve(ctx context.Context, res Resolution) (string, error)
}

// ChallengeSource lists the challenges recorded against a call
type ChallengeSource interface {
	Challenges(ctx context.Context, callLedgerID string) ([]models.Challenge, error)
}

// Receipt reports how a submission ended. AlreadyResolved means another
// node settled the call first.
type Receipt struct {
	TxSignature     string
	AlreadyResolved bool
}

type Submitter struct {
	ledger     Ledger
	challenges ChallengeSource
	retry      retry.Strategy
}

func NewSubmitter(l Ledger, challenges ChallengeSource, strategy retry.Strategy) *Submitter {
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Submitter{ledger: l, challenges: challenges, retry: strategy}
}

// Submit settles call with quorum. An already-resolved or not-active
// rejection is reported through the receipt, never as an error.
func (s *Submitter) Submit(ctx context.Context, call *models.Call, quorum consensus.Quorum) (Receipt, error) {
	if err := CheckQuorum(quorum); err != nil {
		return Receipt{}, err
	}

	var challenges []models.Challenge
	err := s.retry.Execute(ctx, "load challenges", func(ctx context.Context) error {
		var err error
		challenges, err = s.challenges.Challenges(ctx, call.LedgerID)
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to load challenges for %s: %w", call.LedgerID, err)
	}
	if len(challenges) != call.ChallengerCount {
		return Receipt{}, fmt.Errorf("%w: call %s expects %d challengers, store has %d",
			ErrChallengeMismatch, call.LedgerID, call.ChallengerCount, len(challenges))
	}
	SortChallenges(challenges)

	tx, err := s.ledger.Resolve(ctx, Resolution{
		Call:       call,
		Outcome:    quorum.Outcome,
		Timestamp:  quorum.Timestamp,
		Signatures: quorum.Signatures,
		Challenges: challenges,
	})
	if err != nil {
		if IsAlreadyResolved(err) {
			slog.Info("Call already resolved on ledger", "call", call.LedgerID)
			return Receipt{AlreadyResolved: true}, nil
		}
		return Receipt{}, fmt.Errorf("failed to submit resolution for %s: %w", call.LedgerID, err)
	}

	slog.Info("Resolution submitted", "call", call.LedgerID, "outcome", quorum.Outcome.String(), "tx", tx)
	return Receipt{TxSignature: tx}, nil
}

// CheckQuorum requires at least two distinct signers over one (outcome, timestamp)
func CheckQuorum(q consensus.Quorum) error {
	if !q.Outcome.Valid() {
		return fmt.Errorf("%w: outcome %s", ErrInvalidQuorum, q.Outcome)
	}
	seen := make(map[string]struct{}, len(q.Signatures))
	for _, sig := range q.Signatures {
		if sig.Outcome != q.Outcome || sig.Timestamp != q.Timestamp {
			return fmt.Errorf("%w: signature from %s does not match quorum triple", ErrInvalidQuorum, sig.Signer)
		}
		seen[sig.Signer] = struct{}{}
	}
	if len(seen) < consensus.Threshold {
		return fmt.Errorf("%w: %d distinct signers", ErrInvalidQuorum, len(seen))
	}
	return nil
}

// SortChallenges orders challenges by creation time, then ledger id
func SortChallenges(challenges []models.Challenge) {
	sort.SliceStable(challenges, func(i, j int) bool {
		if challenges[i].CreatedAt != challenges[j].CreatedAt {
			return challenges[i].CreatedAt < challenges[j].CreatedAt
		}
		return challenges[i].LedgerID < challenges[j].LedgerID
	})
}

// Program error names and codes meaning the call is no longer Active
var alreadyResolvedPatterns = []string{
	"alreadyresolved",
	"already resolved",
	"callnotactive",
	"call not active",
	"custom program error: 0x1780",
	"custom program error: 0x1781",
	"error number: 6016",
	"error number: 6017",
	"custom:6016",
	"custom:6017",
}

// IsAlreadyResolved reports whether err is the ledger's idempotent
// "already resolved / not active" rejection
func IsAlreadyResolved(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range alreadyResolvedPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
