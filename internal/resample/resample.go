// Package resample converts raw ticks into fixed-cadence OHLCV bars.
// Unlike a streaming builder, this is a pure function: every recompute
// cycle re-derives the full bar series from the stored tick window, so
// no state is carried between calls.
package resample

import (
	"time"

	"pairwatch/internal/model"
)

// priceEpsilon filters corrupt ticks: anything at or below this is dropped
// before bucketing.
const priceEpsilon = 1e-4

// Resample partitions ticks into cadence-aligned buckets and builds one bar
// per bucket. Ticks must be ordered by timestamp ascending (the store's query
// contract). Empty buckets between the first and last tick are synthesized
// from the previous close with zero volume, so the output time axis has no
// gaps. Empty input yields nil.
func Resample(ticks []model.Tick, cadence time.Duration) []model.Bar {
	if len(ticks) == 0 || cadence <= 0 {
		return nil
	}

	cadMs := cadence.Milliseconds()

	// Bucket ticks, skipping corrupt prices.
	type bucketAgg struct {
		bucket int64 // bucket start, epoch ms
		bar    model.Bar
	}
	var buckets []bucketAgg
	for _, t := range ticks {
		if t.Price <= priceEpsilon {
			continue
		}
		bucket := t.TS.UnixMilli()
		bucket -= bucket % cadMs

		if n := len(buckets); n > 0 && buckets[n-1].bucket == bucket {
			b := &buckets[n-1].bar
			if t.Price > b.High {
				b.High = t.Price
			}
			if t.Price < b.Low {
				b.Low = t.Price
			}
			b.Close = t.Price
			b.Volume += t.Size
			continue
		}

		buckets = append(buckets, bucketAgg{
			bucket: bucket,
			bar: model.Bar{
				BucketStart: time.UnixMilli(bucket).UTC(),
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
				Close:       t.Price,
				Volume:      t.Size,
			},
		})
	}
	if len(buckets) == 0 {
		return nil
	}

	// Walk the bucket range and forward-fill gaps so downstream rolling
	// windows see a contiguous series.
	first := buckets[0].bucket
	last := buckets[len(buckets)-1].bucket
	bars := make([]model.Bar, 0, (last-first)/cadMs+1)

	idx := 0
	for bucket := first; bucket <= last; bucket += cadMs {
		if idx < len(buckets) && buckets[idx].bucket == bucket {
			bars = append(bars, buckets[idx].bar)
			idx++
			continue
		}
		prevClose := bars[len(bars)-1].Close
		bars = append(bars, model.Bar{
			BucketStart: time.UnixMilli(bucket).UTC(),
			Open:        prevClose,
			High:        prevClose,
			Low:         prevClose,
			Close:       prevClose,
			Volume:      0,
			Synthetic:   true,
		})
	}

	return bars
}
