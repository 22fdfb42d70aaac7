package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"oracle/internal/consensus"
	"oracle/internal/ledger"
	"oracle/internal/models"
	"oracle/internal/storage"
)

// Coordinator reaches agreement and collects a signature quorum for a call
type Coordinator interface {
	Coordinate(ctx context.Context, call *models.Call) (consensus.Quorum, error)
}

// Submitter settles a call on the ledger
type Submitter interface {
	Submit(ctx context.Context, call *models.Call, quorum consensus.Quorum) (ledger.Receipt, error)
}

// Hook runs after this node settled a call
type Hook interface {
	Name() string
	AfterResolution(ctx context.Context, call *models.Call, result Result) error
}

// Status is how a resolution attempt ended
type Status int

const (
	StatusSubmitted Status = iota + 1
	StatusAlreadyResolved
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusAlreadyResolved:
		return "already_resolved"
	default:
		return "unknown"
	}
}

// Result describes a finished attempt
type Result struct {
	Status      Status
	Outcome     models.Outcome
	TxSignature string
	Signers     []string
}

// Orchestrator runs one call through agreement, submission and hooks
type Orchestrator struct {
	coordinator Coordinator
	submitter   Submitter
	hooks       []Hook
}

// New creates a new Orchestrator with the given hooks
func New(coordinator Coordinator, submitter Submitter, hooks ...Hook) *Orchestrator {
	return &Orchestrator{
		coordinator: coordinator,
		submitter:   submitter,
		hooks:       hooks,
	}
}

// Resolve runs a full attempt for call. Consensus and submission failures
// are returned; hook failures are logged only.
func (o *Orchestrator) Resolve(ctx context.Context, call *models.Call) (Result, error) {
	quorum, err := o.coordinator.Coordinate(ctx, call)
	if err != nil {
		return Result{}, err
	}

	receipt, err := o.submitter.Submit(ctx, call, quorum)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Status:      StatusSubmitted,
		Outcome:     quorum.Outcome,
		TxSignature: receipt.TxSignature,
		Signers:     quorum.Signers(),
	}
	if receipt.AlreadyResolved {
		// Another node settled it and reported it
		result.Status = StatusAlreadyResolved
		return result, nil
	}

	for _, hook := range o.hooks {
		if err := hook.AfterResolution(ctx, call, result); err != nil {
			slog.Error("Post-resolution hook failed",
				"hook", hook.Name(),
				"call", call.LedgerID,
				"error", err,
			)
			// Continue with other hooks; the ledger is already settled
		}
	}

	return result, nil
}

// RecorderHook mirrors settled calls into a record store
type RecorderHook struct {
	name     string
	recorder storage.ResolutionRecorder
}

func NewRecorderHook(name string, recorder storage.ResolutionRecorder) *RecorderHook {
	return &RecorderHook{name: name, recorder: recorder}
}

func (h *RecorderHook) Name() string {
	return h.name
}

func (h *RecorderHook) AfterResolution(ctx context.Context, call *models.Call, result Result) error {
	if err := h.recorder.RecordResolution(ctx, call, result.Outcome, result.TxSignature); err != nil {
		return fmt.Errorf("%s: %w", h.name, err)
	}
	return nil
}
