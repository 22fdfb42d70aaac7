package ledger

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
)

// Layout of a single-signature Ed25519 program instruction: a two byte
// header, one offsets record, then the key, signature and message inline.
const (
	ed25519HeaderSize  = 2
	ed25519OffsetsSize = 14
	ed25519PubKeyOff   = ed25519HeaderSize + ed25519OffsetsSize
	ed25519SigOff      = ed25519PubKeyOff + ed25519.PublicKeySize
	ed25519MsgOff      = ed25519SigOff + ed25519.SignatureSize

	// Data lives in the same instruction
	currentInstruction = 0xffff
)

// ed25519VerifyData encodes the data of an Ed25519 SigVerify instruction
// checking one signature
func ed25519VerifyData(pub, sig, msg []byte) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes", len(pub))
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature is %d bytes", len(sig))
	}
	if len(msg) > 0xffff-ed25519MsgOff {
		return nil, fmt.Errorf("message too long: %d bytes", len(msg))
	}

	data := make([]byte, ed25519MsgOff+len(msg))
	data[0] = 1 // signature count
	data[1] = 0 // padding

	le := binary.LittleEndian
	le.PutUint16(data[2:], ed25519SigOff)
	le.PutUint16(data[4:], currentInstruction)
	le.PutUint16(data[6:], ed25519PubKeyOff)
	le.PutUint16(data[8:], currentInstruction)
	le.PutUint16(data[10:], ed25519MsgOff)
	le.PutUint16(data[12:], uint16(len(msg)))
	le.PutUint16(data[14:], currentInstruction)

	copy(data[ed25519PubKeyOff:], pub)
	copy(data[ed25519SigOff:], sig)
	copy(data[ed25519MsgOff:], msg)
	return data, nil
}
