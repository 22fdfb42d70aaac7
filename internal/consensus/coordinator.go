// Package consensus runs the 2-of-3 agreement and signature collection for a
// single call, and answers the same questions when a peer asks.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"oracle/internal/debug"
	"oracle/internal/metrics"
	"oracle/internal/models"
	"oracle/internal/signing"
)

const (
	// Threshold is the number of matching votes and signatures required
	Threshold = 2

	DefaultPeerTimeout = 10 * time.Second
)

var (
	ErrNoConsensus            = errors.New("no consensus")
	ErrInsufficientSignatures = errors.New("insufficient signatures")

	// ErrOutcomeMismatch is returned to a coordinator asking this node to
	// sign an outcome its own validation does not support
	ErrOutcomeMismatch = errors.New("local validation disagrees with requested outcome")
)

// Peer is another oracle node reachable over the peer RPC surface
type Peer interface {
	Name() string
	Validate(ctx context.Context, call *models.Call) (models.ValidationResult, error)
	Sign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error)
}

// LocalValidator computes this node's own opinion on a call
type LocalValidator interface {
	Validate(ctx context.Context, call *models.Call) models.ValidationResult
}

// Quorum is a set of verified signatures over one (call, outcome, timestamp)
type Quorum struct {
	Outcome    models.Outcome
	Timestamp  int64
	Signatures []models.OracleSignature
}

// Signers returns the public keys of the quorum members
func (q Quorum) Signers() []string {
	signers := make([]string, len(q.Signatures))
	for i, sig := range q.Signatures {
		signers[i] = sig.Signer
	}
	return signers
}

type Coordinator struct {
	validator LocalValidator
	signer    *signing.Signer
	verifier  *signing.Verifier
	peers     []Peer
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Coordinator)

// WithPeerTimeout bounds each individual peer request
func WithPeerTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the source of the attempt timestamp
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(v LocalValidator, signer *signing.Signer, verifier *signing.Verifier, peers []Peer, opts ...Option) *Coordinator {
	c := &Coordinator{
		validator: v,
		signer:    signer,
		verifier:  verifier,
		peers:     peers,
		timeout:   DefaultPeerTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tally returns the outcome backed by at least Threshold votes. Invalid
// outcomes are ignored; a tie between two outcomes is no consensus.
func Tally(votes []models.Outcome) (models.Outcome, bool) {
	counts := make(map[models.Outcome]int, 2)
	for _, v := range votes {
		if v.Valid() {
			counts[v]++
		}
	}

	winner, best, tied := models.OutcomeUnknown, 0, false
	for outcome, n := range counts {
		switch {
		case n > best:
			winner, best, tied = outcome, n, false
		case n == best:
			tied = true
		}
	}
	if best < Threshold || tied {
		return models.OutcomeUnknown, false
	}
	return winner, true
}

type peerVote struct {
	peer   Peer
	result models.ValidationResult
}

// Coordinate gathers validations from this node and every peer, and on
// agreement collects a signature quorum over a single attempt timestamp.
func (c *Coordinator) Coordinate(ctx context.Context, call *models.Call) (Quorum, error) {
	log := slog.With("attempt", uuid.NewString(), "call", call.LedgerID)

	own := c.validator.Validate(ctx, call)
	debug.PrintValidation(call.LedgerID, "self", own)

	votes := c.collectValidations(ctx, log, call)
	outcomes := []models.Outcome{own.Outcome}
	for _, v := range votes {
		outcomes = append(outcomes, v.result.Outcome)
	}

	outcome, ok := Tally(outcomes)
	if !ok {
		log.Info("No consensus", "votes", len(outcomes), "own", own.Outcome.String())
		return Quorum{}, fmt.Errorf("call %s: %w (%d votes)", call.LedgerID, ErrNoConsensus, len(outcomes))
	}
	metrics.ConsensusOutcomes.WithLabelValues(outcome.String()).Inc()
	log.Info("Consensus reached", "outcome", outcome.String(), "votes", len(outcomes))

	req := models.SignRequest{Call: *call, Outcome: outcome, Timestamp: c.now().Unix()}

	var collected []models.OracleSignature
	if own.Outcome == outcome {
		sig, err := c.signer.Sign(call.LedgerID, outcome, req.Timestamp)
		if err != nil {
			return Quorum{}, fmt.Errorf("failed to sign call %s: %w", call.LedgerID, err)
		}
		collected = append(collected, sig)
	}

	var agreeing []Peer
	for _, v := range votes {
		if v.result.Outcome == outcome {
			agreeing = append(agreeing, v.peer)
		}
	}
	collected = append(collected, c.collectSignatures(ctx, log, agreeing, req)...)

	quorum := Quorum{
		Outcome:    outcome,
		Timestamp:  req.Timestamp,
		Signatures: c.acceptSignatures(log, req, collected),
	}
	metrics.SignaturesCollected.Observe(float64(len(quorum.Signatures)))

	if len(quorum.Signatures) < Threshold {
		return Quorum{}, fmt.Errorf("call %s: %w (%d of %d)", call.LedgerID, ErrInsufficientSignatures, len(quorum.Signatures), Threshold)
	}
	debug.PrintSignatures(call.LedgerID, quorum.Signatures)
	return quorum, nil
}

func (c *Coordinator) collectValidations(ctx context.Context, log *slog.Logger, call *models.Call) []peerVote {
	results := make([]*peerVote, len(c.peers))

	var g errgroup.Group
	for i, p := range c.peers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			result, err := p.Validate(pctx, call)
			if err != nil {
				metrics.PeerRequests.WithLabelValues("validate", "error").Inc()
				log.Warn("Peer validation failed", "peer", p.Name(), "error", err)
				return nil
			}
			if !result.Outcome.Valid() {
				metrics.PeerRequests.WithLabelValues("validate", "invalid").Inc()
				log.Warn("Peer returned invalid outcome", "peer", p.Name())
				return nil
			}
			metrics.PeerRequests.WithLabelValues("validate", "ok").Inc()
			debug.PrintValidation(call.LedgerID, p.Name(), result)
			results[i] = &peerVote{peer: p, result: result}
			return nil
		})
	}
	_ = g.Wait()

	votes := make([]peerVote, 0, len(results))
	for _, r := range results {
		if r != nil {
			votes = append(votes, *r)
		}
	}
	return votes
}

func (c *Coordinator) collectSignatures(ctx context.Context, log *slog.Logger, peers []Peer, req models.SignRequest) []models.OracleSignature {
	results := make([]*models.OracleSignature, len(peers))

	var g errgroup.Group
	for i, p := range peers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			sig, err := p.Sign(pctx, req)
			if err != nil {
				metrics.PeerRequests.WithLabelValues("sign", "error").Inc()
				log.Warn("Peer signature failed", "peer", p.Name(), "error", err)
				return nil
			}
			metrics.PeerRequests.WithLabelValues("sign", "ok").Inc()
			results[i] = &sig
			return nil
		})
	}
	_ = g.Wait()

	sigs := make([]models.OracleSignature, 0, len(results))
	for _, s := range results {
		if s != nil {
			sigs = append(sigs, *s)
		}
	}
	return sigs
}

// acceptSignatures keeps signatures over the requested triple from distinct
// authorized signers that verify.
func (c *Coordinator) acceptSignatures(log *slog.Logger, req models.SignRequest, sigs []models.OracleSignature) []models.OracleSignature {
	seen := make(map[string]struct{}, len(sigs))
	accepted := make([]models.OracleSignature, 0, len(sigs))

	reject := func(sig models.OracleSignature, reason string, err error) {
		metrics.SignaturesRejected.WithLabelValues(reason).Inc()
		log.Warn("Dropping signature", "signer", sig.Signer, "reason", reason, "error", err)
	}

	for _, sig := range sigs {
		if !req.Matches(sig) {
			reject(sig, "mismatch", nil)
			continue
		}
		if !c.verifier.Authorized(sig.Signer) {
			reject(sig, "unauthorized", nil)
			continue
		}
		if _, dup := seen[sig.Signer]; dup {
			reject(sig, "duplicate", nil)
			continue
		}
		if err := c.verifier.Verify(req.Call.LedgerID, sig); err != nil {
			reject(sig, "invalid", err)
			continue
		}
		seen[sig.Signer] = struct{}{}
		accepted = append(accepted, sig)
	}
	return accepted
}

// HandleValidate answers a peer's validation request with this node's own opinion
func (c *Coordinator) HandleValidate(ctx context.Context, call *models.Call) models.ValidationResult {
	return c.validator.Validate(ctx, call)
}

// HandleSign signs a peer's request only if this node independently reaches
// the same outcome.
func (c *Coordinator) HandleSign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error) {
	if !req.Outcome.Valid() {
		return models.OracleSignature{}, fmt.Errorf("invalid outcome %d", int(req.Outcome))
	}

	own := c.validator.Validate(ctx, &req.Call)
	if own.Outcome != req.Outcome {
		return models.OracleSignature{}, fmt.Errorf("call %s: %w: requested %s, local %s",
			req.Call.LedgerID, ErrOutcomeMismatch, req.Outcome, own.Outcome)
	}

	return c.signer.Sign(req.Call.LedgerID, req.Outcome, req.Timestamp)
}

// PublicKey returns this node's signing key
func (c *Coordinator) PublicKey() string {
	return c.signer.PublicKey()
}
