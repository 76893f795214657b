package domain

import "time"

// BuyEvent is one accepted buy of the tracked mint. Created once per
// deduplicated transaction and never mutated afterwards.
type BuyEvent struct {
	Wallet      string    `json:"wallet"`
	SolSpent    float64   `json:"solSpent"`
	TokenAmount float64   `json:"tokenAmount"`
	Signature   string    `json:"signature"`
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"source"`
}
