// Package scheduler drives resolution: on every tick it reads the pending
// calls, decides which ones this node should act on, and runs them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"oracle/internal/consensus"
	"oracle/internal/dedupe"
	"oracle/internal/election"
	"oracle/internal/ledger/retry"
	"oracle/internal/metrics"
	"oracle/internal/models"
	"oracle/internal/orchestrator"
)

const (
	DefaultInterval      = 60 * time.Second
	DefaultMaxConcurrent = 4
)

// Feed lists calls waiting for resolution
type Feed interface {
	PendingCalls(ctx context.Context, now time.Time) ([]*models.Call, error)
}

// Resolver runs one full resolution attempt
type Resolver interface {
	Resolve(ctx context.Context, call *models.Call) (orchestrator.Result, error)
}

type Config struct {
	NodeID        int // 1-based
	Interval      time.Duration
	MaxConcurrent int
}

type Scheduler struct {
	cfg      Config
	feed     Feed
	elector  *election.Elector
	attempts *dedupe.Log
	resolver Resolver
	retry    retry.Strategy
	now      func() time.Time
}

func New(cfg Config, feed Feed, elector *election.Elector, attempts *dedupe.Log, resolver Resolver, strategy retry.Strategy) (*Scheduler, error) {
	if cfg.NodeID < 1 || cfg.NodeID > elector.NodeCount() {
		return nil, fmt.Errorf("node id %d outside 1..%d", cfg.NodeID, elector.NodeCount())
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Scheduler{
		cfg:      cfg,
		feed:     feed,
		elector:  elector,
		attempts: attempts,
		resolver: resolver,
		retry:    strategy,
		now:      time.Now,
	}, nil
}

// Run ticks immediately and then on every interval until ctx is cancelled.
// Ticks never overlap: the next one starts after the previous returns.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Starting resolution scheduler",
		"node_id", s.cfg.NodeID,
		"interval", s.cfg.Interval,
		"max_concurrent", s.cfg.MaxConcurrent,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			slog.Error("Scheduler tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, stopping scheduler")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes every eligible pending call and waits for all attempts
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	metrics.TicksTotal.Inc()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	var calls []*models.Call
	err := s.retry.Execute(ctx, "pending calls", func(ctx context.Context) error {
		var err error
		calls, err = s.feed.PendingCalls(ctx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch pending calls: %w", err)
	}
	metrics.PendingCalls.Set(float64(len(calls)))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrent)

	started := 0
	for _, call := range calls {
		// The feed may lag the ledger
		if !call.Pending(now) {
			continue
		}

		role := s.elector.RoleOf(call.LedgerID, s.cfg.NodeID)
		if !s.elector.ShouldAct(role, call.Deadline, now) {
			continue
		}
		if !s.attempts.TryBegin(call.LedgerID) {
			continue
		}

		started++
		metrics.AttemptsStarted.WithLabelValues(role.String()).Inc()
		slog.Info("Starting resolution attempt", "call", call.LedgerID, "role", role.String())

		g.Go(func() error {
			s.attempt(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("Tick complete", "pending", len(calls), "started", started, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Scheduler) attempt(ctx context.Context, call *models.Call) {
	result, err := s.resolver.Resolve(ctx, call)

	switch {
	case err == nil && result.Status == orchestrator.StatusAlreadyResolved:
		metrics.Resolutions.WithLabelValues("already_resolved").Inc()
		s.attempts.Finish(call.LedgerID, true)

	case err == nil:
		metrics.Resolutions.WithLabelValues("submitted").Inc()
		slog.Info("Call resolved", "call", call.LedgerID, "outcome", result.Outcome.String(), "tx", result.TxSignature)
		s.attempts.Finish(call.LedgerID, true)

	case errors.Is(err, consensus.ErrNoConsensus), errors.Is(err, consensus.ErrInsufficientSignatures):
		metrics.Resolutions.WithLabelValues("no_consensus").Inc()
		slog.Info("Resolution deferred", "call", call.LedgerID, "reason", err)
		s.attempts.Finish(call.LedgerID, false)

	default:
		metrics.Resolutions.WithLabelValues("failed").Inc()
		slog.Error("Resolution attempt failed", "call", call.LedgerID, "error", err)
		s.attempts.Finish(call.LedgerID, false)
	}
}
