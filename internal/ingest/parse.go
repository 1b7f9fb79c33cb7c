package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pairwatch/internal/model"
)

// combinedFrame is the envelope used by the multi-stream feed endpoint:
// {"stream":"btcusdt@trade","data":{...}}.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradeEvent is a single trade message from the feed.
type tradeEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Time   int64  `json:"T"` // epoch milliseconds
	Price  string `json:"p"`
	Qty    string `json:"q"`
}

// canonicalTick mirrors the persisted tick shape, accepted in replay files
// alongside raw trade events.
type canonicalTick struct {
	Symbol string  `json:"symbol"`
	TS     string  `json:"ts"` // RFC3339 or epoch-ms string
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
}

// DecodeTick normalizes one raw feed record into a canonical Tick. It accepts
// a combined-stream frame, a bare trade event, or a canonical tick object.
// Anything else is a decode error: the caller skips the record.
func DecodeTick(raw []byte) (model.Tick, error) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return model.Tick{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Stream != "" && len(frame.Data) > 0 {
		raw = frame.Data
	}

	var ev tradeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.Tick{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Event == "trade" {
		return normalizeTrade(ev)
	}

	var ct canonicalTick
	if err := json.Unmarshal(raw, &ct); err != nil {
		return model.Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	return normalizeCanonical(ct)
}

func normalizeTrade(ev tradeEvent) (model.Tick, error) {
	if ev.Symbol == "" {
		return model.Tick{}, fmt.Errorf("trade event missing symbol")
	}
	if ev.Time <= 0 {
		return model.Tick{}, fmt.Errorf("trade event missing timestamp")
	}
	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil || price <= 0 {
		return model.Tick{}, fmt.Errorf("trade event bad price %q", ev.Price)
	}
	size, err := strconv.ParseFloat(ev.Qty, 64)
	if err != nil || size < 0 {
		return model.Tick{}, fmt.Errorf("trade event bad qty %q", ev.Qty)
	}
	return model.Tick{
		Symbol: strings.ToUpper(ev.Symbol),
		TS:     time.UnixMilli(ev.Time).UTC(),
		Price:  price,
		Size:   size,
	}, nil
}

func normalizeCanonical(ct canonicalTick) (model.Tick, error) {
	if ct.Symbol == "" {
		return model.Tick{}, fmt.Errorf("tick missing symbol")
	}
	if ct.Price <= 0 {
		return model.Tick{}, fmt.Errorf("tick bad price %v", ct.Price)
	}
	if ct.Size < 0 {
		return model.Tick{}, fmt.Errorf("tick bad size %v", ct.Size)
	}
	ts, err := parseTS(ct.TS)
	if err != nil {
		return model.Tick{}, err
	}
	return model.Tick{
		Symbol: strings.ToUpper(ct.Symbol),
		TS:     ts,
		Price:  ct.Price,
		Size:   ct.Size,
	}, nil
}

func parseTS(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("tick missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("tick bad timestamp %q", s)
}
