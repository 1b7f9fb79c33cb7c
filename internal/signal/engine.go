// Package signal derives the pair-trading signal series from two aligned
// close-price series: hedge ratio, spread, rolling z-score, rolling
// correlation and an ADF stationarity test on the spread.
//
// Everything here is a full recomputation over the supplied window. No state
// is carried between calls, so identical inputs always produce identical
// outputs. Incremental variants were deliberately not built: the windows are
// tens to hundreds of bars and incremental variance/regression formulas have
// different floating-point error characteristics.
package signal

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"pairwatch/internal/model"
)

// DefaultWindow is the rolling window used when none is configured.
const DefaultWindow = 50

// minRegressionPoints is the smallest joined window the OLS hedge estimate
// will run on; below it the ratio falls back to 1.0.
const minRegressionPoints = 3

// Result is the output of one signal computation.
type Result struct {
	Points         []model.SignalPoint // one per joined timestamp, ascending
	HedgeRatio     float64
	HedgeEstimated bool // false when the ratio was supplied or fell back to 1.0
	JoinedN        int  // post-join sample size (see Snapshot diagnosability)
	Stationarity   StationarityResult
}

// Engine computes signal series over a rolling window.
type Engine struct {
	window int
}

// NewEngine creates an engine with the given rolling window size.
func NewEngine(window int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{window: window}
}

// Window returns the configured rolling window size.
func (e *Engine) Window() int { return e.window }

// Compute inner-joins the two bar series on bucket timestamps and derives the
// full signal series. hedge, when non-nil, overrides the OLS estimate.
// Timestamps present in only one series are dropped from both; misaligned
// points contribute no signal rather than being imputed.
func (e *Engine) Compute(barsA, barsB []model.Bar, hedge *float64) Result {
	tss, closeA, closeB := join(barsA, barsB)

	res := Result{JoinedN: len(tss)}

	if hedge != nil {
		res.HedgeRatio = *hedge
	} else {
		res.HedgeRatio, res.HedgeEstimated = estimateHedgeRatio(closeA, closeB)
	}

	if len(tss) == 0 {
		res.Stationarity = insufficientData()
		return res
	}

	spread := make([]float64, len(tss))
	for i := range tss {
		spread[i] = closeA[i] - res.HedgeRatio*closeB[i]
	}

	res.Points = make([]model.SignalPoint, len(tss))
	for i := range tss {
		res.Points[i] = model.SignalPoint{
			TS:          tss[i],
			Spread:      spread[i],
			ZScore:      rollingZScore(spread, i, e.window),
			Correlation: rollingCorrelation(closeA, closeB, i, e.window),
			Volatility:  rollingStdDev(closeA, i, e.window),
		}
	}

	res.Stationarity = ADFTest(spread)
	return res
}

// join merge-joins the two bar series on equal bucket starts. Both inputs are
// ascending (the resampler's contract), so a single pass suffices.
func join(barsA, barsB []model.Bar) (tss []time.Time, closeA, closeB []float64) {
	i, j := 0, 0
	for i < len(barsA) && j < len(barsB) {
		ta, tb := barsA[i].BucketStart, barsB[j].BucketStart
		switch {
		case ta.Before(tb):
			i++
		case tb.Before(ta):
			j++
		default:
			tss = append(tss, ta)
			closeA = append(closeA, barsA[i].Close)
			closeB = append(closeB, barsB[j].Close)
			i++
			j++
		}
	}
	return tss, closeA, closeB
}

// estimateHedgeRatio fits A = intercept + slope*B by OLS over the full joined
// window and returns the slope. Falls back to 1.0 when the window is too
// small or the regression is singular (zero variance in B).
func estimateHedgeRatio(closeA, closeB []float64) (ratio float64, estimated bool) {
	if len(closeA) < minRegressionPoints {
		return 1.0, false
	}

	cov, err := stats.Covariance(closeB, closeA)
	if err != nil {
		return 1.0, false
	}
	varB, err := stats.SampleVariance(closeB)
	if err != nil || varB == 0 || math.IsNaN(varB) {
		return 1.0, false
	}

	slope := cov / varB
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1.0, false
	}
	return slope, true
}

// rollingZScore standardizes series[i] against the trailing window ending at
// i. Undefined until the window fills and when the window stddev is zero.
func rollingZScore(series []float64, i, window int) model.NullFloat {
	if i < window-1 {
		return model.NoFloat()
	}
	win := series[i-window+1 : i+1]

	mean, err := stats.Mean(win)
	if err != nil {
		return model.NoFloat()
	}
	sd, err := stats.StandardDeviationSample(win)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return model.NoFloat()
	}
	return model.Float((series[i] - mean) / sd)
}

// rollingCorrelation computes the Pearson correlation of the two series over
// the trailing window ending at i. Undefined until the window fills and when
// either side has zero in-window variance.
func rollingCorrelation(a, b []float64, i, window int) model.NullFloat {
	if i < window-1 {
		return model.NoFloat()
	}
	corr, err := stats.Correlation(a[i-window+1:i+1], b[i-window+1:i+1])
	if err != nil || math.IsNaN(corr) {
		return model.NoFloat()
	}
	return model.Float(corr)
}

// rollingStdDev is the rolling sample standard deviation over the trailing
// window ending at i. Undefined until the window fills.
func rollingStdDev(series []float64, i, window int) model.NullFloat {
	if i < window-1 {
		return model.NoFloat()
	}
	sd, err := stats.StandardDeviationSample(series[i-window+1 : i+1])
	if err != nil || math.IsNaN(sd) {
		return model.NoFloat()
	}
	return model.Float(sd)
}

// VWAP returns the cumulative volume-weighted average price of the bar
// series, using the typical price (H+L+C)/3 per bar. Undefined while the
// cumulative volume is zero (gap bars carry no volume).
func VWAP(bars []model.Bar) model.NullFloat {
	var pvSum, volSum float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pvSum += typical * b.Volume
		volSum += b.Volume
	}
	if volSum == 0 {
		return model.NoFloat()
	}
	return model.Float(pvSum / volSum)
}
