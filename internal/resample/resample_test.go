package resample

import (
	"testing"
	"time"

	"pairwatch/internal/model"
)

func tick(ts time.Time, price, size float64) model.Tick {
	return model.Tick{Symbol: "BTCUSDT", TS: ts, Price: price, Size: size}
}

func TestResample_SingleBucket(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	bars := Resample([]model.Tick{
		tick(base.Add(100*time.Millisecond), 100, 1),
		tick(base.Add(400*time.Millisecond), 102, 2),
	}, time.Second)

	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	b := bars[0]
	if !b.BucketStart.Equal(base) {
		t.Errorf("expected bucket start %v, got %v", base, b.BucketStart)
	}
	if b.Open != 100 {
		t.Errorf("expected open=100, got %v", b.Open)
	}
	if b.High != 102 {
		t.Errorf("expected high=102, got %v", b.High)
	}
	if b.Low != 100 {
		t.Errorf("expected low=100, got %v", b.Low)
	}
	if b.Close != 102 {
		t.Errorf("expected close=102, got %v", b.Close)
	}
	if b.Volume != 3 {
		t.Errorf("expected volume=3, got %v", b.Volume)
	}
}

func TestResample_GapFill(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	bars := Resample([]model.Tick{
		tick(base, 100, 1),
		// No ticks for 3 seconds.
		tick(base.Add(4*time.Second), 105, 2),
	}, time.Second)

	if len(bars) != 5 {
		t.Fatalf("expected 5 contiguous bars, got %d", len(bars))
	}
	for i := 1; i < 4; i++ {
		b := bars[i]
		if !b.Synthetic {
			t.Errorf("bar %d: expected synthetic gap bar", i)
		}
		if b.Open != 100 || b.High != 100 || b.Low != 100 || b.Close != 100 {
			t.Errorf("bar %d: expected flat OHLC=100, got %+v", i, b)
		}
		if b.Volume != 0 {
			t.Errorf("bar %d: expected volume=0, got %v", i, b.Volume)
		}
	}
	if bars[4].Close != 105 {
		t.Errorf("expected last close=105, got %v", bars[4].Close)
	}
}

func TestResample_NoTimestampGaps(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cadences := []time.Duration{time.Second, 5 * time.Second, time.Minute}

	ticks := []model.Tick{
		tick(base.Add(300*time.Millisecond), 100, 1),
		tick(base.Add(7*time.Second), 101, 1),
		tick(base.Add(33*time.Second), 99, 2),
		tick(base.Add(2*time.Minute+15*time.Second), 103, 1),
	}

	for _, cad := range cadences {
		bars := Resample(ticks, cad)
		if len(bars) == 0 {
			t.Fatalf("cadence %v: expected bars", cad)
		}
		for i := 1; i < len(bars); i++ {
			gap := bars[i].BucketStart.Sub(bars[i-1].BucketStart)
			if gap != cad {
				t.Errorf("cadence %v: gap of %v between bars %d and %d", cad, gap, i-1, i)
			}
		}
	}
}

func TestResample_CorruptPriceFilter(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	bars := Resample([]model.Tick{
		tick(base, 0, 5),       // zero price, dropped
		tick(base, 0.00005, 5), // below epsilon, dropped
		tick(base.Add(200*time.Millisecond), 100, 1),
	}, time.Second)

	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if bars[0].Open != 100 || bars[0].Volume != 1 {
		t.Errorf("corrupt ticks leaked into bar: %+v", bars[0])
	}
}

func TestResample_EmptyInput(t *testing.T) {
	if bars := Resample(nil, time.Second); bars != nil {
		t.Errorf("expected nil for empty input, got %d bars", len(bars))
	}
	// All ticks corrupt behaves like empty input.
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if bars := Resample([]model.Tick{tick(base, 0, 1)}, time.Second); bars != nil {
		t.Errorf("expected nil when every tick is filtered, got %d bars", len(bars))
	}
}

func TestResample_Ascending(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var ticks []model.Tick
	for i := 0; i < 30; i++ {
		ticks = append(ticks, tick(base.Add(time.Duration(i)*700*time.Millisecond), 100+float64(i%3), 1))
	}
	bars := Resample(ticks, time.Second)
	for i := 1; i < len(bars); i++ {
		if !bars[i].BucketStart.After(bars[i-1].BucketStart) {
			t.Fatalf("bars not strictly ascending at %d", i)
		}
	}
}
