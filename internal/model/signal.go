package model

import (
	"encoding/json"
	"time"
)

// NullFloat is a float64 with an explicit "no value" state. Rolling statistics
// are undefined until their window fills (and for z-scores, when the window
// variance is zero); NullFloat carries that through without NaN ambiguity.
type NullFloat struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Float returns a valid NullFloat.
func Float(v float64) NullFloat { return NullFloat{Value: v, Valid: true} }

// NoFloat returns the explicit undefined value.
func NoFloat() NullFloat { return NullFloat{} }

// SignalPoint is the per-bar signal output for one joined timestamp.
// HedgeRatio is window-scoped and lives on the enclosing result, not here.
type SignalPoint struct {
	TS          time.Time `json:"ts"`
	Spread      float64   `json:"spread"`
	ZScore      NullFloat `json:"zscore"`
	Correlation NullFloat `json:"correlation"`
	Volatility  NullFloat `json:"volatility"` // rolling stddev of spread's A-leg close
}

// Snapshot is the point-in-time scalar view consumed by the presentation and
// assistant collaborators. Published to Redis every recompute cycle.
type Snapshot struct {
	PairKey     string    `json:"pair_key"`
	At          time.Time `json:"at"`
	HedgeRatio  float64   `json:"hedge_ratio"`
	ZScore      NullFloat `json:"zscore"`
	Spread      NullFloat `json:"spread"`
	Correlation NullFloat `json:"correlation"`
	JoinedN     int       `json:"joined_n"` // post-join sample size
	Stationary  bool      `json:"stationary"`
	PValue      NullFloat `json:"p_value"`
	VWAPA       NullFloat `json:"vwap_a"`
	VWAPB       NullFloat `json:"vwap_b"`
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
