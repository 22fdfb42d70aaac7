package signing

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"oracle/internal/models"
)

var (
	// ErrInvalidSignature is returned when a signature does not verify
	ErrInvalidSignature = errors.New("signature does not verify")

	// ErrUnauthorizedSigner is returned for keys outside the oracle set
	ErrUnauthorizedSigner = errors.New("signer is not an authorized oracle")
)

// Signer produces this node's resolution attestations
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}
}

// PublicKey returns the base58 encoded public key
func (s *Signer) PublicKey() string {
	return base58.Encode(s.pubKey)
}

// PrivateKey exposes the raw key for transaction signing
func (s *Signer) PrivateKey() ed25519.PrivateKey {
	return s.privKey
}

// Sign attests to (callID, outcome, timestamp)
func (s *Signer) Sign(callID string, outcome models.Outcome, timestamp int64) (models.OracleSignature, error) {
	msg, err := Message(callID, outcome, timestamp)
	if err != nil {
		return models.OracleSignature{}, err
	}

	return models.OracleSignature{
		Signer:    s.PublicKey(),
		Signature: ed25519.Sign(s.privKey, msg),
		Outcome:   outcome,
		Timestamp: timestamp,
	}, nil
}

// Verifier checks signatures against the authorized oracle set
type Verifier struct {
	authorized map[string]struct{}
}

// NewVerifier builds a verifier for the given base58 public keys.
// An empty set accepts any structurally valid signer.
func NewVerifier(oracles []string) (*Verifier, error) {
	v := &Verifier{authorized: make(map[string]struct{}, len(oracles))}
	for _, key := range oracles {
		if _, err := DecodeKey(key); err != nil {
			return nil, fmt.Errorf("oracle signer: %w", err)
		}
		v.authorized[key] = struct{}{}
	}
	return v, nil
}

// Authorized reports whether signer belongs to the oracle set
func (v *Verifier) Authorized(signer string) bool {
	if len(v.authorized) == 0 {
		return true
	}
	_, ok := v.authorized[signer]
	return ok
}

// Verify recomputes the message for callID and checks sig against its claimed signer
func (v *Verifier) Verify(callID string, sig models.OracleSignature) error {
	if !v.Authorized(sig.Signer) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedSigner, sig.Signer)
	}

	pub, err := DecodeKey(sig.Signer)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	if len(sig.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes", ErrInvalidSignature, len(sig.Signature))
	}

	msg, err := Message(callID, sig.Outcome, sig.Timestamp)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ParsePrivateKey reads a Solana keypair either as a JSON byte array
// (solana-keygen format, 64 bytes) or as a base58 string (64 or 32 byte seed).
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty private key")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("invalid keypair array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, b := range ints {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("invalid keypair byte %d at %d", b, i)
			}
			raw[i] = byte(b)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base58 private key: %w", err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		// The trailing half of a Solana keypair must be the seed's public key
		derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !derived.Equal(priv) {
			return nil, errors.New("keypair public half does not match seed")
		}
		return priv, nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
}
