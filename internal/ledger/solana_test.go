package ledger

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle/internal/models"
	"oracle/internal/signing"
)

func keyOf(seed byte) (ed25519.PrivateKey, string) {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(s)
	return priv, base58.Encode(priv.Public().(ed25519.PublicKey))
}

func TestEd25519VerifyData_RoundTrip(t *testing.T) {
	priv, _ := keyOf(1)
	pub := priv.Public().(ed25519.PublicKey)
	msg := []byte("resolution message")
	sig := ed25519.Sign(priv, msg)

	data, err := ed25519VerifyData(pub, sig, msg)
	require.NoError(t, err)

	assert.Equal(t, byte(1), data[0])
	le := binary.LittleEndian
	sigOff := le.Uint16(data[2:])
	pkOff := le.Uint16(data[6:])
	msgOff := le.Uint16(data[10:])
	msgLen := le.Uint16(data[12:])
	assert.Equal(t, uint16(48), sigOff)
	assert.Equal(t, uint16(16), pkOff)
	assert.Equal(t, uint16(112), msgOff)
	for _, idx := range []int{4, 8, 14} {
		assert.Equal(t, uint16(0xffff), le.Uint16(data[idx:]))
	}

	gotPub := data[pkOff : pkOff+32]
	gotSig := data[sigOff : sigOff+64]
	gotMsg := data[msgOff : msgOff+msgLen]
	assert.True(t, ed25519.Verify(gotPub, gotMsg, gotSig))
}

func TestEd25519VerifyData_Rejects(t *testing.T) {
	_, err := ed25519VerifyData(make([]byte, 31), make([]byte, 64), nil)
	assert.Error(t, err)
	_, err = ed25519VerifyData(make([]byte, 32), make([]byte, 63), nil)
	assert.Error(t, err)
}

func TestAnchorDiscriminator(t *testing.T) {
	assert.Len(t, resolveCallDiscriminator, 8)
	assert.Equal(t, resolveCallDiscriminator, anchorDiscriminator("resolve_call"))
	assert.NotEqual(t, resolveCallDiscriminator, anchorDiscriminator("auto_refund"))
}

func TestSolanaLedger_Instructions(t *testing.T) {
	oracleKey, _ := keyOf(9)
	_, callKey := keyOf(2)
	_, caller := keyOf(3)
	_, chRecord := keyOf(4)
	_, chWallet := keyOf(5)
	_, programID := keyOf(6)

	l, err := NewSolanaLedger(SolanaConfig{RPCURL: "http://127.0.0.1:8899", ProgramID: programID}, oracleKey, nil)
	require.NoError(t, err)

	s1, _ := keyOf(11)
	s2, _ := keyOf(12)
	signer1, signer2 := signing.NewSigner(s1), signing.NewSigner(s2)
	sig1, err := signer1.Sign(callKey, models.OutcomeCallerLoses, 1_700_000_000)
	require.NoError(t, err)
	sig2, err := signer2.Sign(callKey, models.OutcomeCallerLoses, 1_700_000_000)
	require.NoError(t, err)

	res := Resolution{
		Call:       &models.Call{LedgerID: callKey, Caller: caller, ChallengerCount: 1},
		Outcome:    models.OutcomeCallerLoses,
		Timestamp:  1_700_000_000,
		Signatures: []models.OracleSignature{sig1, sig2},
		Challenges: []models.Challenge{{LedgerID: chRecord, Challenger: chWallet}},
	}

	ixs, err := l.Instructions(res)
	require.NoError(t, err)
	require.Len(t, ixs, 4)

	assert.True(t, ixs[0].ProgramID().Equals(computeBudgetProgramID))
	assert.True(t, ixs[1].ProgramID().Equals(ed25519ProgramID))
	assert.True(t, ixs[2].ProgramID().Equals(ed25519ProgramID))

	resolve := ixs[3]
	assert.Equal(t, programID, resolve.ProgramID().String())

	data, err := resolve.Data()
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, resolveCallDiscriminator...), 1), data)

	accounts := resolve.Accounts()
	require.Len(t, accounts, 6+3)
	assert.Equal(t, callKey, accounts[0].PublicKey.String())
	assert.True(t, accounts[3].PublicKey.Equals(instructionsSysvarID))
	assert.True(t, accounts[4].IsSigner)
	assert.Equal(t, chRecord, accounts[6].PublicKey.String())
	assert.Equal(t, chWallet, accounts[7].PublicKey.String())
	assert.Equal(t, caller, accounts[8].PublicKey.String())
	assert.True(t, accounts[8].IsWritable)

	sigData, err := ixs[1].Data()
	require.NoError(t, err)
	msg, err := signing.Message(callKey, models.OutcomeCallerLoses, 1_700_000_000)
	require.NoError(t, err)
	assert.Equal(t, msg, sigData[112:])
}

func TestNewSolanaLedger_Validation(t *testing.T) {
	key, _ := keyOf(1)
	_, err := NewSolanaLedger(SolanaConfig{ProgramID: "11111111111111111111111111111111"}, key, nil)
	assert.Error(t, err)

	_, err = NewSolanaLedger(SolanaConfig{RPCURL: "http://localhost", ProgramID: "bad"}, key, nil)
	assert.Error(t, err)
}
