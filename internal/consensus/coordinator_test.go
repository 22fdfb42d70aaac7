package consensus

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle/internal/models"
	"oracle/internal/signing"
)

var (
	fixedNow = time.Unix(1_700_000_500, 0)
	callKey  = base58.Encode(bytesOf(7, 32))
)

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

type staticValidator struct {
	outcome models.Outcome
}

func (s staticValidator) Validate(context.Context, *models.Call) models.ValidationResult {
	return models.ValidationResult{Outcome: s.outcome, Confidence: 1, Reason: "static"}
}

type node struct {
	name   string
	signer *signing.Signer
	coord  *Coordinator
}

func newSigner(seed byte) *signing.Signer {
	return signing.NewSigner(ed25519.NewKeyFromSeed(bytesOf(seed, ed25519.SeedSize)))
}

// localPeer reaches another node's coordinator in-process
type localPeer struct {
	node *node

	mu        sync.Mutex
	signCalls int

	down   bool
	hang   bool
	tamper func(*models.OracleSignature)
}

func (p *localPeer) Name() string { return p.node.name }

func (p *localPeer) Validate(ctx context.Context, call *models.Call) (models.ValidationResult, error) {
	if p.down {
		return models.ValidationResult{}, errors.New("connection refused")
	}
	if p.hang {
		<-ctx.Done()
		return models.ValidationResult{}, ctx.Err()
	}
	return p.node.coord.HandleValidate(ctx, call), nil
}

func (p *localPeer) Sign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error) {
	p.mu.Lock()
	p.signCalls++
	p.mu.Unlock()

	sig, err := p.node.coord.HandleSign(ctx, req)
	if err == nil && p.tamper != nil {
		p.tamper(&sig)
	}
	return sig, err
}

func (p *localPeer) SignCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signCalls
}

type cluster struct {
	nodes    [3]*node
	peers    [2]*localPeer
	verifier *signing.Verifier
}

// newCluster builds three nodes voting the given outcomes; node 0 coordinates
func newCluster(t *testing.T, outcomes [3]models.Outcome) *cluster {
	t.Helper()

	c := &cluster{}
	var keys []string
	for i := range c.nodes {
		s := newSigner(byte(i + 1))
		keys = append(keys, s.PublicKey())
		c.nodes[i] = &node{name: []string{"node-1", "node-2", "node-3"}[i], signer: s}
	}

	verifier, err := signing.NewVerifier(keys)
	require.NoError(t, err)
	c.verifier = verifier

	for i, n := range c.nodes {
		n.coord = NewCoordinator(staticValidator{outcomes[i]}, n.signer, verifier, nil,
			WithClock(func() time.Time { return fixedNow }),
			WithPeerTimeout(100*time.Millisecond))
	}
	c.peers = [2]*localPeer{{node: c.nodes[1]}, {node: c.nodes[2]}}
	c.nodes[0].coord.peers = []Peer{c.peers[0], c.peers[1]}
	return c
}

func call() *models.Call {
	return &models.Call{LedgerID: callKey, Category: models.CategoryPriceTarget, TokenAddress: "token"}
}

func TestTally(t *testing.T) {
	w, l, u := models.OutcomeCallerWins, models.OutcomeCallerLoses, models.OutcomeUnknown

	tests := []struct {
		name  string
		votes []models.Outcome
		want  models.Outcome
		ok    bool
	}{
		{"unanimous", []models.Outcome{w, w, w}, w, true},
		{"two of three", []models.Outcome{l, w, l}, l, true},
		{"two votes agree", []models.Outcome{w, w}, w, true},
		{"split", []models.Outcome{w, l}, u, false},
		{"single vote", []models.Outcome{w}, u, false},
		{"invalid votes ignored", []models.Outcome{w, u, u}, u, false},
		{"no votes", nil, u, false},
		{"tie among four", []models.Outcome{w, w, l, l}, u, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Tally(tt.votes)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoordinate_Unanimous(t *testing.T) {
	w := models.OutcomeCallerWins
	c := newCluster(t, [3]models.Outcome{w, w, w})

	q, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	require.NoError(t, err)

	assert.Equal(t, w, q.Outcome)
	assert.Equal(t, fixedNow.Unix(), q.Timestamp)
	require.Len(t, q.Signatures, 3)
	assert.ElementsMatch(t, []string{
		c.nodes[0].signer.PublicKey(), c.nodes[1].signer.PublicKey(), c.nodes[2].signer.PublicKey(),
	}, q.Signers())

	for _, sig := range q.Signatures {
		assert.Equal(t, q.Timestamp, sig.Timestamp)
		assert.NoError(t, c.verifier.Verify(callKey, sig))
	}
}

func TestCoordinate_SignaturesOnlyFromAgreeingPeers(t *testing.T) {
	w, l := models.OutcomeCallerWins, models.OutcomeCallerLoses
	c := newCluster(t, [3]models.Outcome{w, w, l})

	q, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	require.NoError(t, err)

	assert.Equal(t, w, q.Outcome)
	assert.Len(t, q.Signatures, 2)
	assert.Equal(t, 1, c.peers[0].SignCalls())
	assert.Equal(t, 0, c.peers[1].SignCalls())
}

func TestCoordinate_CoordinatorInMinority(t *testing.T) {
	w, l := models.OutcomeCallerWins, models.OutcomeCallerLoses
	c := newCluster(t, [3]models.Outcome{w, l, l})

	q, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	require.NoError(t, err)

	assert.Equal(t, l, q.Outcome)
	assert.ElementsMatch(t, []string{c.nodes[1].signer.PublicKey(), c.nodes[2].signer.PublicKey()}, q.Signers())
}

func TestCoordinate_NoConsensus(t *testing.T) {
	w, l := models.OutcomeCallerWins, models.OutcomeCallerLoses
	c := newCluster(t, [3]models.Outcome{w, l, w})
	c.peers[1].down = true

	_, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	assert.ErrorIs(t, err, ErrNoConsensus)
	assert.Equal(t, 0, c.peers[0].SignCalls())
}

func TestCoordinate_UnresponsivePeersAreBounded(t *testing.T) {
	w := models.OutcomeCallerWins
	c := newCluster(t, [3]models.Outcome{w, w, w})
	c.peers[0].hang = true
	c.peers[1].hang = true

	start := time.Now()
	_, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	assert.ErrorIs(t, err, ErrNoConsensus)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCoordinate_OnePeerDown(t *testing.T) {
	w := models.OutcomeCallerWins
	c := newCluster(t, [3]models.Outcome{w, w, w})
	c.peers[1].down = true

	q, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	require.NoError(t, err)
	assert.Len(t, q.Signatures, 2)
}

func TestCoordinate_DropsBadSignatures(t *testing.T) {
	w := models.OutcomeCallerWins
	outsider := newSigner(99)

	tests := []struct {
		name   string
		tamper func(*models.OracleSignature)
	}{
		{"timestamp differs from request", func(s *models.OracleSignature) { s.Timestamp++ }},
		{"outcome differs from request", func(s *models.OracleSignature) { s.Outcome = models.OutcomeCallerLoses }},
		{"corrupted bytes", func(s *models.OracleSignature) { s.Signature[0] ^= 0xff }},
		{"truncated", func(s *models.OracleSignature) { s.Signature = s.Signature[:10] }},
		{"unauthorized signer", func(s *models.OracleSignature) {
			forged, _ := outsider.Sign(callKey, s.Outcome, s.Timestamp)
			*s = forged
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCluster(t, [3]models.Outcome{w, w, w})
			c.peers[0].tamper = tt.tamper
			c.peers[1].down = true

			_, err := c.nodes[0].coord.Coordinate(context.Background(), call())
			assert.ErrorIs(t, err, ErrInsufficientSignatures)
		})
	}
}

func TestCoordinate_DuplicateSignerCountedOnce(t *testing.T) {
	w := models.OutcomeCallerWins
	c := newCluster(t, [3]models.Outcome{w, w, w})
	c.peers[1].down = true

	// Peer replays the coordinator's own signature
	coordinator := c.nodes[0].signer
	c.peers[0].tamper = func(s *models.OracleSignature) {
		own, _ := coordinator.Sign(callKey, s.Outcome, s.Timestamp)
		*s = own
	}

	_, err := c.nodes[0].coord.Coordinate(context.Background(), call())
	assert.ErrorIs(t, err, ErrInsufficientSignatures)
}

func TestHandleSign(t *testing.T) {
	w, l := models.OutcomeCallerWins, models.OutcomeCallerLoses
	c := newCluster(t, [3]models.Outcome{w, w, w})
	coord := c.nodes[1].coord

	sig, err := coord.HandleSign(context.Background(), models.SignRequest{Call: *call(), Outcome: w, Timestamp: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(42), sig.Timestamp)
	assert.Equal(t, coord.PublicKey(), sig.Signer)
	assert.NoError(t, c.verifier.Verify(callKey, sig))

	_, err = coord.HandleSign(context.Background(), models.SignRequest{Call: *call(), Outcome: l, Timestamp: 42})
	assert.ErrorIs(t, err, ErrOutcomeMismatch)

	_, err = coord.HandleSign(context.Background(), models.SignRequest{Call: *call(), Timestamp: 42})
	assert.Error(t, err)
}
