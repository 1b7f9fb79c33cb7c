package model

import "time"

// AlertKind classifies a z-score threshold breach.
type AlertKind string

const (
	AlertZHigh AlertKind = "Z_HIGH"
	AlertZLow  AlertKind = "Z_LOW"
)

// Alert is an append-only threshold-breach record. ID is assigned by the
// store on insert; alerts are never mutated and pruned only by a bulk clear.
type Alert struct {
	ID      int64     `json:"id"`
	TS      time.Time `json:"ts"`
	PairKey string    `json:"pair_key"` // "A-B"
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
	Value   float64   `json:"value"` // z-score at trigger time
}

// PairKey builds the deterministic "A-B" key for a symbol pair.
func PairKey(symbolA, symbolB string) string {
	return symbolA + "-" + symbolB
}
