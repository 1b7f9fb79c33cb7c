package model

import "time"

// Tick represents a single trade event from the upstream feed.
// Prices are quoted in the instrument's quote currency (float64, matching
// the feed's decimal-string payloads).
type Tick struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`    // UTC, from the exchange epoch-ms timestamp
	Price  float64   `json:"price"` // last trade price, > 0
	Size   float64   `json:"size"`  // trade quantity, >= 0
}
