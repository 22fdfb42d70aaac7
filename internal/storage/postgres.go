package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"oracle/internal/models"
	"oracle/internal/rug"
)

type pgxRows interface {
	Next() bool
	Close()
	Scan(dest ...any) error
	Err() error
}

var _ pgxRows = (pgx.Rows)(nil)

// PostgresRepository implements Repository over the indexer's PostgreSQL tables
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

const callColumns = `
	id, onchain_id, caller_address, category, COALESCE(token_address, ''),
	target_price, creation_price,
	deadline, created_at,
	status, challengers_count`

// PendingCalls retrieves Active calls past their deadline
func (r *PostgresRepository) PendingCalls(ctx context.Context, now time.Time) ([]*models.Call, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE status = 'Active' AND deadline <= $1
		ORDER BY deadline ASC`

	rows, err := r.pool.Query(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending calls: %w", err)
	}
	return scanCalls(rows)
}

func scanCalls(rows pgxRows) ([]*models.Call, error) {
	defer rows.Close()

	var calls []*models.Call
	for rows.Next() {
		var (
			call     models.Call
			category string
			status   string
		)
		if err := rows.Scan(
			&call.ID,
			&call.LedgerID,
			&call.Caller,
			&category,
			&call.TokenAddress,
			&call.TargetPrice,
			&call.CreationPrice,
			&call.Deadline,
			&call.CreatedAt,
			&status,
			&call.ChallengerCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}

		_ = call.Category.UnmarshalText([]byte(category))
		if err := call.Status.UnmarshalText([]byte(status)); err != nil {
			slog.Warn("Skipping call with unknown status", "call", call.LedgerID, "error", err)
			continue
		}
		calls = append(calls, &call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calls: %w", err)
	}
	return calls, nil
}

// Challenges retrieves the challenges against a call in creation order
func (r *PostgresRepository) Challenges(ctx context.Context, callLedgerID string) ([]models.Challenge, error) {
	query := `
		SELECT id, onchain_id, call_id, challenger_address, stake, created_at
		FROM challenges
		WHERE call_id = $1
		ORDER BY created_at ASC, onchain_id ASC`

	rows, err := r.pool.Query(ctx, query, callLedgerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	return scanChallenges(rows)
}

func scanChallenges(rows pgxRows) ([]models.Challenge, error) {
	defer rows.Close()

	var challenges []models.Challenge
	for rows.Next() {
		var (
			ch    models.Challenge
			stake int64
		)
		if err := rows.Scan(&ch.ID, &ch.LedgerID, &ch.CallID, &ch.Challenger, &stake, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		if stake < 0 {
			return nil, fmt.Errorf("challenge %s has negative stake %d", ch.LedgerID, stake)
		}
		ch.Stake = uint64(stake)
		challenges = append(challenges, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return challenges, nil
}

// TopHolderReduction compares the top-10 holder total captured at or just
// before since with the latest capture, returning the fraction sold
func (r *PostgresRepository) TopHolderReduction(ctx context.Context, token string, since int64) (float64, error) {
	query := `
		SELECT
			(SELECT top10_amount FROM holder_snapshots
				WHERE token_address = $1 AND captured_at <= $2
				ORDER BY captured_at DESC LIMIT 1),
			(SELECT top10_amount FROM holder_snapshots
				WHERE token_address = $1
				ORDER BY captured_at DESC LIMIT 1)`

	var baseline, latest *float64
	if err := r.pool.QueryRow(ctx, query, token, since).Scan(&baseline, &latest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, rug.ErrHistoryUnavailable
		}
		return 0, fmt.Errorf("failed to query holder snapshots: %w", err)
	}
	return holderReduction(baseline, latest)
}

func holderReduction(baseline, latest *float64) (float64, error) {
	if baseline == nil || latest == nil || *baseline <= 0 {
		return 0, rug.ErrHistoryUnavailable
	}
	reduction := (*baseline - *latest) / *baseline
	if reduction < 0 {
		return 0, nil
	}
	return reduction, nil
}

// RecordResolution mirrors a settled call into the calls table
func (r *PostgresRepository) RecordResolution(ctx context.Context, call *models.Call, outcome models.Outcome, txSignature string) error {
	status := models.StatusResolvedCallerLoses
	if outcome == models.OutcomeCallerWins {
		status = models.StatusResolvedCallerWins
	}

	query := `
		UPDATE calls
		SET status = $2, resolution_tx = NULLIF($3, ''), resolved_at = EXTRACT(EPOCH FROM NOW())::bigint
		WHERE onchain_id = $1 AND status = 'Active'`

	if _, err := r.pool.Exec(ctx, query, call.LedgerID, status.String(), txSignature); err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
