package storage

import (
	"context"
	"time"

	"oracle/internal/models"
)

// Repository is the pending-work feed and challenge index
type Repository interface {
	// PendingCalls returns Active calls whose deadline is at or before now,
	// ordered by ascending deadline
	PendingCalls(ctx context.Context, now time.Time) ([]*models.Call, error)

	// Challenges returns the challenges recorded against a call
	Challenges(ctx context.Context, callLedgerID string) ([]models.Challenge, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}

// ResolutionRecorder mirrors a settled call back into the record store
type ResolutionRecorder interface {
	RecordResolution(ctx context.Context, call *models.Call, outcome models.Outcome, txSignature string) error
}
