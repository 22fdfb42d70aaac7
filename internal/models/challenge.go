package models

// Challenge is a counter-stake against a call, as mirrored by the record store
type Challenge struct {
	ID         string `json:"id"`
	LedgerID   string `json:"onchain_id"` // Challenge account key
	CallID     string `json:"call_id"`    // Call ledger id
	Challenger string `json:"challenger_address"`
	Stake      uint64 `json:"stake"`
	CreatedAt  int64  `json:"created_at"`
}
