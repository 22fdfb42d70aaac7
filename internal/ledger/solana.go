package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"oracle/internal/ledger/retry"
	"oracle/internal/models"
	"oracle/internal/signing"
)

var (
	ed25519ProgramID       = solana.MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")
	computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	instructionsSysvarID   = solana.MustPublicKeyFromBase58("Sysvar1nstructions1111111111111111111111111")
	systemProgramID        = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	resolveCallDiscriminator = anchorDiscriminator("resolve_call")
)

// One SigVerify instruction per signature plus the transfers need headroom
const computeUnitLimit = 800_000

func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

type SolanaConfig struct {
	RPCURL    string `yaml:"rpc_url"`
	ProgramID string `yaml:"program_id"`
}

// SolanaLedger submits resolve_call transactions to the prediction program.
// The oracle key pays for and signs each transaction.
type SolanaLedger struct {
	client    *rpc.Client
	programID solana.PublicKey
	oracle    solana.PrivateKey
	retry     retry.Strategy
}

func NewSolanaLedger(cfg SolanaConfig, oracleKey ed25519.PrivateKey, strategy retry.Strategy) (*SolanaLedger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("solana rpc url is empty")
	}
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", cfg.ProgramID, err)
	}
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &SolanaLedger{
		client:    rpc.New(cfg.RPCURL),
		programID: programID,
		oracle:    solana.PrivateKey(oracleKey),
		retry:     strategy,
	}, nil
}

func (l *SolanaLedger) Resolve(ctx context.Context, res Resolution) (string, error) {
	ixs, err := l.Instructions(res)
	if err != nil {
		return "", err
	}

	var blockhash solana.Hash
	err = l.retry.Execute(ctx, "latest blockhash", func(ctx context.Context) error {
		out, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		blockhash = out.Value.Blockhash
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	payer := l.oracle.PublicKey()
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &l.oracle
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", withRPCErrorData(err)
	}
	return sig.String(), nil
}

// Instructions builds the compute budget, signature verification and
// resolve_call instructions for res, in transaction order
func (l *SolanaLedger) Instructions(res Resolution) ([]solana.Instruction, error) {
	callKey, err := solana.PublicKeyFromBase58(res.Call.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("invalid call key %q: %w", res.Call.LedgerID, err)
	}
	msg, err := signing.Message(res.Call.LedgerID, res.Outcome, res.Timestamp)
	if err != nil {
		return nil, err
	}

	budget := make([]byte, 5)
	budget[0] = 2 // SetComputeUnitLimit
	binary.LittleEndian.PutUint32(budget[1:], computeUnitLimit)
	ixs := []solana.Instruction{
		solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, budget),
	}

	for _, sig := range res.Signatures {
		pub, err := signing.DecodeKey(sig.Signer)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", sig.Signer, err)
		}
		data, err := ed25519VerifyData(pub, sig.Signature, msg)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", sig.Signer, err)
		}
		ixs = append(ixs, solana.NewInstruction(ed25519ProgramID, solana.AccountMetaSlice{}, data))
	}

	resolve, err := l.resolveInstruction(callKey, res)
	if err != nil {
		return nil, err
	}
	return append(ixs, resolve), nil
}

func (l *SolanaLedger) resolveInstruction(callKey solana.PublicKey, res Resolution) (solana.Instruction, error) {
	escrow, _, err := solana.FindProgramAddress([][]byte{[]byte("escrow"), callKey.Bytes()}, l.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive escrow address: %w", err)
	}
	config, _, err := solana.FindProgramAddress([][]byte{[]byte("config")}, l.programID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive config address: %w", err)
	}
	caller, err := solana.PublicKeyFromBase58(res.Call.Caller)
	if err != nil {
		return nil, fmt.Errorf("invalid caller wallet %q: %w", res.Call.Caller, err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(callKey, true, false),
		solana.NewAccountMeta(escrow, true, false),
		solana.NewAccountMeta(config, false, false),
		solana.NewAccountMeta(instructionsSysvarID, false, false),
		solana.NewAccountMeta(l.oracle.PublicKey(), true, true),
		solana.NewAccountMeta(systemProgramID, false, false),
	}

	// Remaining accounts: challenge records, then their wallets, then the caller
	wallets := make(solana.AccountMetaSlice, 0, len(res.Challenges))
	for _, ch := range res.Challenges {
		record, err := solana.PublicKeyFromBase58(ch.LedgerID)
		if err != nil {
			return nil, fmt.Errorf("invalid challenge account %q: %w", ch.LedgerID, err)
		}
		wallet, err := solana.PublicKeyFromBase58(ch.Challenger)
		if err != nil {
			return nil, fmt.Errorf("invalid challenger wallet %q: %w", ch.Challenger, err)
		}
		accounts = append(accounts, solana.NewAccountMeta(record, true, false))
		wallets = append(wallets, solana.NewAccountMeta(wallet, true, false))
	}
	accounts = append(accounts, wallets...)
	accounts = append(accounts, solana.NewAccountMeta(caller, true, false))

	data := make([]byte, 0, len(resolveCallDiscriminator)+1)
	data = append(data, resolveCallDiscriminator...)
	data = append(data, outcomeArg(res.Outcome))

	return solana.NewInstruction(l.programID, accounts, data), nil
}

// outcomeArg is the program's enum index for an outcome
func outcomeArg(o models.Outcome) byte {
	if o == models.OutcomeCallerWins {
		return 0
	}
	return 1
}

// withRPCErrorData appends the RPC error payload, which carries the program
// logs and custom error code, so the rejection can be classified
func withRPCErrorData(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		return fmt.Errorf("%w: %v", err, rpcErr.Data)
	}
	return err
}
