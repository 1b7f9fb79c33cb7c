package model

import "time"

// Bar is an OHLCV aggregate over one cadence-aligned time bucket.
// Bars are derived from stored ticks on every recompute cycle and never
// persisted.
type Bar struct {
	BucketStart time.Time `json:"bucket_start"` // UTC, cadence-aligned
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Synthetic   bool      `json:"synthetic"` // true for forward-filled gap bars
}
