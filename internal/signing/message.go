package signing

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"oracle/internal/models"
)

// MessageSize is the fixed length of a resolution message
const MessageSize = 32 + 1 + 8

// DecodeKey decodes a base58 32-byte account key (call id or public key)
func DecodeKey(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 key %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid key %q: expected 32 bytes, got %d", s, len(raw))
	}
	return raw, nil
}

// Message encodes the resolution triple exactly as the ledger program rebuilds it:
// call key (32) || outcome flag (1) || timestamp as little-endian int64 (8).
func Message(callID string, outcome models.Outcome, timestamp int64) ([]byte, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("cannot sign outcome %s", outcome)
	}
	key, err := DecodeKey(callID)
	if err != nil {
		return nil, err
	}

	msg := make([]byte, MessageSize)
	copy(msg, key)
	msg[32] = outcome.Flag()
	binary.LittleEndian.PutUint64(msg[33:], uint64(timestamp))
	return msg, nil
}
