package signal

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"pairwatch/internal/model"
)

func barSeries(base time.Time, cadence time.Duration, closes []float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			BucketStart: base.Add(time.Duration(i) * cadence),
			Open:        c,
			High:        c,
			Low:         c,
			Close:       c,
			Volume:      1,
		}
	}
	return bars
}

func TestEngine_HedgeRatioEstimate(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// A is exactly twice B: the OLS slope of A on B must come out 2.0.
	closesB := make([]float64, 40)
	closesA := make([]float64, 40)
	for i := range closesB {
		closesB[i] = 100 + math.Sin(float64(i)/3)*5 + float64(i)*0.1
		closesA[i] = 2 * closesB[i]
	}

	eng := NewEngine(10)
	res := eng.Compute(barSeries(base, time.Second, closesA), barSeries(base, time.Second, closesB), nil)

	if !res.HedgeEstimated {
		t.Fatalf("expected estimated hedge ratio, got fallback %v", res.HedgeRatio)
	}
	if math.Abs(res.HedgeRatio-2.0) > 1e-9 {
		t.Errorf("expected hedge ratio 2.0, got %v", res.HedgeRatio)
	}
	// Spread of a perfect 2:1 pair is identically zero (up to rounding).
	for i, p := range res.Points {
		if math.Abs(p.Spread) > 1e-9 {
			t.Errorf("point %d: expected zero spread, got %v", i, p.Spread)
			break
		}
	}
}

func TestEngine_HedgeRatioSupplied(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104}
	h := 1.5

	res := NewEngine(3).Compute(barSeries(base, time.Second, closes), barSeries(base, time.Second, closes), &h)
	if res.HedgeRatio != 1.5 {
		t.Errorf("expected supplied hedge ratio 1.5, got %v", res.HedgeRatio)
	}
	if res.HedgeEstimated {
		t.Errorf("supplied ratio must not be flagged as estimated")
	}
	if res.Points[0].Spread != 100-1.5*100 {
		t.Errorf("expected spread %v, got %v", 100-1.5*100, res.Points[0].Spread)
	}
}

func TestEngine_HedgeRatioFallback(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// Too few joined points.
	res := NewEngine(5).Compute(
		barSeries(base, time.Second, []float64{100, 101}),
		barSeries(base, time.Second, []float64{50, 51}),
		nil,
	)
	if res.HedgeRatio != 1.0 || res.HedgeEstimated {
		t.Errorf("short window: expected fallback 1.0, got %v (estimated=%v)", res.HedgeRatio, res.HedgeEstimated)
	}

	// Constant B makes the regression singular.
	flat := make([]float64, 30)
	varying := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
		varying[i] = 100 + float64(i)
	}
	res = NewEngine(5).Compute(
		barSeries(base, time.Second, varying),
		barSeries(base, time.Second, flat),
		nil,
	)
	if res.HedgeRatio != 1.0 || res.HedgeEstimated {
		t.Errorf("singular regression: expected fallback 1.0, got %v (estimated=%v)", res.HedgeRatio, res.HedgeEstimated)
	}
}

func TestEngine_InnerJoinDropsMisaligned(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	barsA := barSeries(base, time.Second, []float64{100, 101, 102, 103})
	// B is missing the second bucket and has one extra trailing bucket.
	barsB := []model.Bar{
		{BucketStart: base, Close: 50},
		{BucketStart: base.Add(2 * time.Second), Close: 52},
		{BucketStart: base.Add(3 * time.Second), Close: 53},
		{BucketStart: base.Add(4 * time.Second), Close: 54},
	}

	res := NewEngine(2).Compute(barsA, barsB, nil)
	if res.JoinedN != 3 {
		t.Fatalf("expected 3 joined points, got %d", res.JoinedN)
	}
	want := []time.Time{base, base.Add(2 * time.Second), base.Add(3 * time.Second)}
	for i, p := range res.Points {
		if !p.TS.Equal(want[i]) {
			t.Errorf("point %d: expected ts %v, got %v", i, want[i], p.TS)
		}
	}
}

func TestEngine_ZScoreUndefinedCases(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w := 5

	// Identical closes on both legs: spread is constant, so the window
	// stddev is zero and every z-score stays undefined.
	flat := make([]float64, 12)
	for i := range flat {
		flat[i] = 100
	}
	h := 1.0
	res := NewEngine(w).Compute(barSeries(base, time.Second, flat), barSeries(base, time.Second, flat), &h)
	for i, p := range res.Points {
		if p.ZScore.Valid {
			t.Errorf("point %d: expected undefined z-score on zero variance, got %v", i, p.ZScore.Value)
		}
	}

	// Varying series: undefined for the first w-1 points, defined after.
	varying := []float64{100, 102, 101, 104, 103, 106, 105, 108}
	res = NewEngine(w).Compute(barSeries(base, time.Second, varying), barSeries(base, time.Second, flat[:len(varying)]), &h)
	for i, p := range res.Points {
		if i < w-1 && p.ZScore.Valid {
			t.Errorf("point %d: expected undefined z-score before window fills", i)
		}
		if i >= w-1 && !p.ZScore.Valid {
			t.Errorf("point %d: expected defined z-score after window fills", i)
		}
	}
}

func TestEngine_RollingCorrelation(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w := 4

	closesA := []float64{100, 101, 102, 103, 104, 105}
	closesB := []float64{200, 202, 204, 206, 208, 210} // perfectly correlated

	h := 1.0
	res := NewEngine(w).Compute(barSeries(base, time.Second, closesA), barSeries(base, time.Second, closesB), &h)
	for i, p := range res.Points {
		if i < w-1 {
			if p.Correlation.Valid {
				t.Errorf("point %d: expected undefined correlation before window fills", i)
			}
			continue
		}
		if !p.Correlation.Valid {
			t.Fatalf("point %d: expected defined correlation", i)
		}
		if math.Abs(p.Correlation.Value-1.0) > 1e-9 {
			t.Errorf("point %d: expected correlation 1.0, got %v", i, p.Correlation.Value)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))

	closesA := make([]float64, 60)
	closesB := make([]float64, 60)
	for i := range closesA {
		closesA[i] = 100 + rng.NormFloat64()
		closesB[i] = 50 + rng.NormFloat64()
	}
	barsA := barSeries(base, time.Second, closesA)
	barsB := barSeries(base, time.Second, closesB)

	eng := NewEngine(20)
	r1 := eng.Compute(barsA, barsB, nil)
	r2 := eng.Compute(barsA, barsB, nil)

	if r1.HedgeRatio != r2.HedgeRatio {
		t.Errorf("hedge ratio differs across identical computes: %v vs %v", r1.HedgeRatio, r2.HedgeRatio)
	}
	if len(r1.Points) != len(r2.Points) {
		t.Fatalf("point counts differ: %d vs %d", len(r1.Points), len(r2.Points))
	}
	for i := range r1.Points {
		if r1.Points[i] != r2.Points[i] {
			t.Errorf("point %d differs: %+v vs %+v", i, r1.Points[i], r2.Points[i])
		}
	}
	if r1.Stationarity.PValue != r2.Stationarity.PValue {
		t.Errorf("stationarity differs across identical computes")
	}
}

func TestEngine_EmptyInputs(t *testing.T) {
	res := NewEngine(10).Compute(nil, nil, nil)
	if res.JoinedN != 0 || len(res.Points) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.HedgeRatio != 1.0 {
		t.Errorf("expected fallback hedge ratio on empty input, got %v", res.HedgeRatio)
	}
	if res.Stationarity.Reason != ReasonInsufficientData {
		t.Errorf("expected insufficient-data stationarity, got %+v", res.Stationarity)
	}
}

func TestVWAP(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	bars := []model.Bar{
		{BucketStart: base, High: 102, Low: 98, Close: 100, Volume: 2},
		{BucketStart: base.Add(time.Second), High: 104, Low: 100, Close: 102, Volume: 1},
	}
	v := VWAP(bars)
	if !v.Valid {
		t.Fatal("expected defined vwap")
	}
	// (100*2 + 102*1) / 3
	want := (100.0*2 + 102.0) / 3
	if math.Abs(v.Value-want) > 1e-9 {
		t.Errorf("expected vwap %v, got %v", want, v.Value)
	}

	if v := VWAP(nil); v.Valid {
		t.Error("expected undefined vwap for empty bars")
	}
	if v := VWAP([]model.Bar{{High: 1, Low: 1, Close: 1, Volume: 0}}); v.Valid {
		t.Error("expected undefined vwap for zero volume")
	}
}
