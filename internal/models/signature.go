package models

// OracleSignature is one oracle's attestation of (call, outcome, timestamp)
type OracleSignature struct {
	Signer    string  `json:"signer"`    // Base58 Ed25519 public key
	Signature []byte  `json:"signature"` // 64 bytes, base64 on the wire
	Outcome   Outcome `json:"outcome"`
	Timestamp int64   `json:"timestamp"`
}

// SignRequest asks an oracle to sign an exact resolution triple. The full
// call travels with it so the signing node can validate independently.
type SignRequest struct {
	Call      Call    `json:"call"`
	Outcome   Outcome `json:"outcome"`
	Timestamp int64   `json:"timestamp"`
}

// Matches reports whether sig attests to the triple requested in r
func (r SignRequest) Matches(sig OracleSignature) bool {
	return sig.Outcome == r.Outcome && sig.Timestamp == r.Timestamp
}
