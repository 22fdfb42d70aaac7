package scheduler

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle/internal/consensus"
	"oracle/internal/dedupe"
	"oracle/internal/election"
	"oracle/internal/ledger"
	"oracle/internal/market"
	"oracle/internal/models"
	"oracle/internal/orchestrator"
	"oracle/internal/peer"
	"oracle/internal/price"
	"oracle/internal/rug"
	"oracle/internal/signing"
	"oracle/internal/validator"
)

type fixedPrice float64

func (fixedPrice) Name() string { return "fixed" }

func (p fixedPrice) Price(context.Context, string) (float64, error) { return float64(p), nil }

type noMarket struct{}

func (noMarket) Pairs(context.Context, string) ([]market.Pair, error) { return nil, errors.New("unused") }

// chain settles each call once and rejects later attempts the way the program does
type chain struct {
	mu       sync.Mutex
	verifier *signing.Verifier
	settled  map[string]ledger.Resolution
}

func (c *chain) Resolve(_ context.Context, res ledger.Resolution) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.settled[res.Call.LedgerID]; ok {
		return "", errors.New("AnchorError caused by account: call. Error Code: AlreadyResolved. Error Number: 6017.")
	}
	valid := 0
	for _, sig := range res.Signatures {
		if sig.Outcome == res.Outcome && sig.Timestamp == res.Timestamp && c.verifier.Verify(res.Call.LedgerID, sig) == nil {
			valid++
		}
	}
	if valid < 2 {
		return "", errors.New("insufficient oracle signatures")
	}
	c.settled[res.Call.LedgerID] = res
	return "tx-" + res.Call.LedgerID[:8], nil
}

type noChallenges struct{}

func (noChallenges) Challenges(context.Context, string) ([]models.Challenge, error) { return nil, nil }

// lateHandler lets the RPC server start before its coordinator exists
type lateHandler struct {
	coord *consensus.Coordinator
}

func (h *lateHandler) HandleValidate(ctx context.Context, call *models.Call) models.ValidationResult {
	return h.coord.HandleValidate(ctx, call)
}

func (h *lateHandler) HandleSign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error) {
	return h.coord.HandleSign(ctx, req)
}

type testNode struct {
	scheduler *Scheduler
	attempts  *dedupe.Log
}

func TestEndToEnd_ThreeNodes(t *testing.T) {
	e := newElector(t)

	// Pick a call account whose leader and backup differ
	var callKey string
	for seed := byte(1); ; seed++ {
		key := make([]byte, 32)
		for i := range key {
			key[i] = seed
		}
		callKey = base58.Encode(key)
		if e.Leader(callKey) != e.Backup(callKey) {
			break
		}
	}
	leader, backup := e.Leader(callKey), e.Backup(callKey)
	bystander := 6 - leader - backup

	signers := make([]*signing.Signer, 3)
	var keys []string
	for i := range signers {
		seed := make([]byte, ed25519.SeedSize)
		seed[0] = byte(i + 1)
		signers[i] = signing.NewSigner(ed25519.NewKeyFromSeed(seed))
		keys = append(keys, signers[i].PublicKey())
	}
	verifier, err := signing.NewVerifier(keys)
	require.NoError(t, err)

	handlers := make([]*lateHandler, 3)
	urls := make([]string, 3)
	for i := range handlers {
		handlers[i] = &lateHandler{}
		server, err := peer.NewServer(handlers[i])
		require.NoError(t, err)
		srv := httptest.NewServer(server)
		t.Cleanup(srv.Close)
		urls[i] = srv.URL
	}

	ledgerState := &chain{verifier: verifier, settled: make(map[string]ledger.Resolution)}
	feed := &staticFeed{calls: []*models.Call{{
		ID:            "db-1",
		LedgerID:      callKey,
		Category:      models.CategoryPriceTarget,
		TokenAddress:  "Mint",
		CreationPrice: ptr(1.0),
		TargetPrice:   ptr(2.0),
		Deadline:      deadline,
		CreatedAt:     deadline - 86400,
		Status:        models.StatusActive,
	}}}

	nodes := make([]testNode, 3)
	for i := range nodes {
		v := validator.New(
			price.NewAggregator(time.Second, fixedPrice(2.5), fixedPrice(2.5)),
			rug.NewEvaluator(noMarket{}, nil, rug.DefaultConfig()),
		)

		var peers []consensus.Peer
		for j, url := range urls {
			if j != i {
				peers = append(peers, peer.NewClient("node", url))
			}
		}
		coord := consensus.NewCoordinator(v, signers[i], verifier, peers, consensus.WithPeerTimeout(2*time.Second))
		handlers[i].coord = coord

		resolver := orchestrator.New(coord, ledger.NewSubmitter(ledgerState, noChallenges{}, nil))
		attempts, err := dedupe.New(dedupe.DefaultCapacity)
		require.NoError(t, err)
		s, err := New(Config{NodeID: i + 1}, feed, e, attempts, resolver, nil)
		require.NoError(t, err)
		nodes[i] = testNode{scheduler: s, attempts: attempts}
	}
	node := func(id int) testNode { return nodes[id-1] }
	at := func(n testNode, now time.Time) { n.scheduler.now = func() time.Time { return now } }

	// Leader acts as soon as the deadline passes
	at(node(leader), time.Unix(deadline+1, 0))
	require.NoError(t, node(leader).scheduler.Tick(context.Background()))

	require.Len(t, ledgerState.settled, 1)
	res := ledgerState.settled[callKey]
	assert.Equal(t, models.OutcomeCallerWins, res.Outcome)
	assert.Len(t, res.Signatures, 3)
	assert.True(t, node(leader).attempts.Done(callKey))

	// The feed still lists the call; the bystander never initiates
	at(node(bystander), time.Unix(deadline, 0).Add(time.Hour))
	require.NoError(t, node(bystander).scheduler.Tick(context.Background()))
	assert.False(t, node(bystander).attempts.Done(callKey))

	// A late backup attempt meets the settled call and records it as done
	at(node(backup), time.Unix(deadline, 0).Add(election.DefaultGracePeriod))
	require.NoError(t, node(backup).scheduler.Tick(context.Background()))
	assert.True(t, node(backup).attempts.Done(callKey))
	assert.Len(t, ledgerState.settled, 1)
}

func ptr(v float64) *float64 { return &v }
