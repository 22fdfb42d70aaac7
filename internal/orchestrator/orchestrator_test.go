package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle/internal/consensus"
	"oracle/internal/ledger"
	"oracle/internal/models"
)

type fakeCoordinator struct {
	quorum consensus.Quorum
	err    error
}

func (f fakeCoordinator) Coordinate(context.Context, *models.Call) (consensus.Quorum, error) {
	return f.quorum, f.err
}

type fakeSubmitter struct {
	receipt ledger.Receipt
	err     error
	calls   int
}

func (f *fakeSubmitter) Submit(context.Context, *models.Call, consensus.Quorum) (ledger.Receipt, error) {
	f.calls++
	return f.receipt, f.err
}

type fakeRecorder struct {
	err      error
	recorded []string
}

func (f *fakeRecorder) RecordResolution(_ context.Context, call *models.Call, outcome models.Outcome, tx string) error {
	f.recorded = append(f.recorded, call.LedgerID+":"+outcome.String()+":"+tx)
	return f.err
}

var testQuorum = consensus.Quorum{
	Outcome:   models.OutcomeCallerWins,
	Timestamp: 10,
	Signatures: []models.OracleSignature{
		{Signer: "a", Outcome: models.OutcomeCallerWins, Timestamp: 10},
		{Signer: "b", Outcome: models.OutcomeCallerWins, Timestamp: 10},
	},
}

func TestResolve_Submitted(t *testing.T) {
	failing := &fakeRecorder{err: errors.New("backend down")}
	working := &fakeRecorder{}
	o := New(fakeCoordinator{quorum: testQuorum}, &fakeSubmitter{receipt: ledger.Receipt{TxSignature: "tx1"}},
		NewRecorderHook("backend", failing),
		NewRecorderHook("postgres", working),
	)

	result, err := o.Resolve(context.Background(), &models.Call{LedgerID: "call"})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, result.Status)
	assert.Equal(t, "tx1", result.TxSignature)
	assert.Equal(t, []string{"a", "b"}, result.Signers)

	// A failing hook does not stop the next one
	assert.Equal(t, []string{"call:CallerWins:tx1"}, failing.recorded)
	assert.Equal(t, []string{"call:CallerWins:tx1"}, working.recorded)
}

func TestResolve_AlreadyResolvedSkipsHooks(t *testing.T) {
	rec := &fakeRecorder{}
	o := New(fakeCoordinator{quorum: testQuorum}, &fakeSubmitter{receipt: ledger.Receipt{AlreadyResolved: true}},
		NewRecorderHook("backend", rec))

	result, err := o.Resolve(context.Background(), &models.Call{LedgerID: "call"})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyResolved, result.Status)
	assert.Empty(t, rec.recorded)
}

func TestResolve_NoConsensusSkipsSubmission(t *testing.T) {
	sub := &fakeSubmitter{}
	o := New(fakeCoordinator{err: consensus.ErrNoConsensus}, sub)

	_, err := o.Resolve(context.Background(), &models.Call{LedgerID: "call"})
	assert.ErrorIs(t, err, consensus.ErrNoConsensus)
	assert.Zero(t, sub.calls)
}

func TestResolve_SubmissionFailure(t *testing.T) {
	o := New(fakeCoordinator{quorum: testQuorum}, &fakeSubmitter{err: errors.New("blockhash not found")})

	_, err := o.Resolve(context.Background(), &models.Call{LedgerID: "call"})
	assert.Error(t, err)
}
